package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type ctxKey struct{}

// DeviceFromContext returns the verified device id, or "" when the request was not authenticated.
func DeviceFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

func ContextWithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ctxKey{}, device)
}

// RequireDevice rejects requests without a valid Bearer device token.
func RequireDevice(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := VerifyHS256(strings.TrimSpace(token), secret, time.Now())
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithDevice(r.Context(), claims.Sub)))
		})
	}
}
