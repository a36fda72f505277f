package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func serve(t *testing.T, fn http.HandlerFunc) (int, body) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var b body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return w.Code, b
}

func ok(context.Context) error { return nil }

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, ok)

	code, b := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", b.Status)
	assert.Empty(t, b.Checks)
}

func TestReadyEndpoint_Gate(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, ok)

	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", b.Checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, b = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", b.Status)
	assert.True(t, h.IsReady())
}

func TestProbe_Thresholds(t *testing.T) {
	var failing error = errors.New("connection refused")
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("redis", time.Second, func(context.Context) error { return failing })
	p := h.deps[0]

	ctx := context.Background()
	for range failureThreshold - 1 {
		p.run(ctx)
	}
	assert.True(t, h.IsReady(), "below threshold")

	p.run(ctx)
	assert.False(t, h.IsReady())
	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", b.Status)
	assert.Equal(t, "connection refused", b.Checks["redis"])

	failing = nil
	p.run(ctx)
	assert.True(t, h.IsReady())
}

func TestProbe_Timeout(t *testing.T) {
	p := newProbe("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	for range failureThreshold {
		p.run(context.Background())
	}
	assert.False(t, p.healthy.Load())
	assert.Contains(t, p.failure(), "deadline exceeded")
}

func TestStartStop(t *testing.T) {
	h := New()
	calls := make(chan struct{}, 16)
	h.AddLivenessCheck("tick", time.Second, func(context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	defer h.Stop()

	for range 2 {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("check did not run")
		}
	}
	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestPingCheck(t *testing.T) {
	boom := errors.New("down")
	err := PingCheck(func(context.Context) error { return boom })(context.Background())
	require.ErrorIs(t, err, boom)
	assert.NoError(t, PingCheck(ok)(context.Background()))
}
