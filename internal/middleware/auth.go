package middleware

import (
	"context"
	"net/http"
	"strings"

	"villagewalks/backend/internal/authctx"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

// TokenVerifier is satisfied by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// WithAuth verifies the Firebase ID token and puts the caller into the
// request context. Browsers cannot set headers on a websocket upgrade, so
// the token may also come as the access_token query parameter.
func WithAuth(verifier TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idToken := bearerToken(r)
			if idToken == "" {
				unauthorized(w, "missing Authorization: Bearer <token>")
				return
			}

			tok, err := verifier.VerifyIDToken(r.Context(), idToken)
			if err != nil {
				log.Debug("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				unauthorized(w, "invalid token")
				return
			}

			caller := authctx.FromClaims(tok.UID, tok.Claims)
			next.ServeHTTP(w, r.WithContext(authctx.WithCaller(r.Context(), caller)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > len("bearer ") && strings.EqualFold(h[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"` + msg + `"}`))
}
