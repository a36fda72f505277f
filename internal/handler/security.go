package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/auth"
)

const (
	userIDKey    = "userId"
	apiKeyKey    = "apiKey"
	headerAPIKey = "api_key"
)

// UserAuth verifies the HS256 bearer token and stores the caller's user id,
// taken from the userId claim or else from sub.
func UserAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := parseUserToken(c.GetHeader("Authorization"), secret)
		if err != nil {
			zctx.From(c.Request.Context()).Debug("Rejected bearer token", zap.Error(err))
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func parseUserToken(header string, secret []byte) (string, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
		return "", errors.New("missing bearer token")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", errors.Wrap(err, "parse token")
	}

	for _, name := range []string{"userId", "sub"} {
		if v, ok := claims[name].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", errors.New("token has no user id")
}

// AdminAuth authenticates the api_key header and requires the admin scope.
func AdminAuth(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		info, err := v.Verify(ctx, c.GetHeader(headerAPIKey))
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			zctx.From(ctx).Error("Verify api key", zap.Error(err))
			abort(c, http.StatusInternalServerError, "internal error")
			return
		case !info.HasScope(auth.ScopeAdmin):
			abort(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Set(apiKeyKey, info)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
