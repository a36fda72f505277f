package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func TestWrap_Order(t *testing.T) {
	var trace []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				trace = append(trace, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mark("a"), mark("b"), mark("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, trace)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"Missing", "", false},
		{"Valid", "abc-123", true},
		{"ControlChar", "bad\x01id", false},
		{"TooLong", strings.Repeat("x", 129), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set(HeaderRequestID, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
			if tt.reuse {
				assert.Equal(t, tt.header, seen)
			} else {
				assert.NotEqual(t, tt.header, seen)
			}
		})
	}
}

func TestInjectLogger_LogRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			zctx.From(r.Context()).Info("inside")
			w.WriteHeader(http.StatusNotFound)
		}),
		RequestID(),
		InjectLogger(zap.New(core)),
		LogRequests(),
	)

	r := httptest.NewRequest(http.MethodGet, "/api/order/x", nil)
	r.Header.Set(HeaderRequestID, "req-1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "inside", entries[0].Message)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])

	assert.Equal(t, "Request", entries[1].Message)
	fields := entries[1].ContextMap()
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
	assert.Equal(t, "/api/order/x", fields["path"])
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errorBody{Code: 500, Message: "internal error"}, decodeError(t, w))
}

func TestRecovery_AbortHandler(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
		wantCreds  bool
	}{
		{
			name:       "Wildcard",
			cfg:        CORSConfig{AllowOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://shop.example",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:       "ListedOriginCaseInsensitive",
			cfg:        CORSConfig{AllowOrigins: []string{"https://Shop.example"}},
			method:     http.MethodGet,
			origin:     "https://shop.example",
			wantStatus: http.StatusOK,
			wantOrigin: "https://Shop.example",
		},
		{
			name:       "UnlistedOrigin",
			cfg:        CORSConfig{AllowOrigins: []string{"https://shop.example"}},
			method:     http.MethodGet,
			origin:     "https://evil.example",
			wantStatus: http.StatusOK,
		},
		{
			name:       "WildcardWithCredentialsEchoes",
			cfg:        CORSConfig{AllowCredentials: true},
			method:     http.MethodGet,
			origin:     "https://shop.example",
			wantStatus: http.StatusOK,
			wantOrigin: "https://shop.example",
			wantCreds:  true,
		},
		{
			name:       "Preflight",
			cfg:        CORSConfig{AllowOrigins: []string{"*"}, MaxAge: 600},
			method:     http.MethodOptions,
			origin:     "https://shop.example",
			preflight:  true,
			wantStatus: http.StatusNoContent,
			wantOrigin: "*",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/api/product", nil)
			r.Header.Set("Origin", tt.origin)
			if tt.preflight {
				r.Header.Set("Access-Control-Request-Method", http.MethodPost)
				r.Header.Set("Access-Control-Request-Headers", "api_key")
			}
			w := httptest.NewRecorder()
			CORS(tt.cfg)(okHandler()).ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantCreds {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
			if tt.preflight {
				assert.Equal(t, "api_key", w.Header().Get("Access-Control-Allow-Headers"))
				assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	send := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	for range 2 {
		w := send("10.0.0.1:9999")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := send("10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, errorBody{Code: 429, Message: "rate limit exceeded"}, decodeError(t, w))

	assert.Equal(t, http.StatusOK, send("10.0.0.2:9999").Code, "other clients keep their budget")
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 10, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 10 {
		_, _, ok := l.take("k", start)
		require.True(t, ok)
	}
	_, _, ok := l.take("k", start.Add(30*time.Second))
	assert.False(t, ok, "window still full")

	// Halfway into the next window half of the previous count still applies.
	for range 5 {
		_, _, ok = l.take("k", start.Add(90*time.Second))
		require.True(t, ok)
	}
	_, _, ok = l.take("k", start.Add(90*time.Second))
	assert.False(t, ok)

	l.evict(start.Add(5 * time.Minute))
	assert.Empty(t, l.counters)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(r))
}
