package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/haulbot/dispatcher/internal/api"
)

type contextKey struct{}

// ClaimsKey is the request context key holding the caller's *AdminClaims.
var ClaimsKey = contextKey{}

// Middleware admits requests bearing a valid token issued for scope. A
// missing or unparsable token is a 401; a valid token for another scope is
// a 403.
func Middleware(mgr *JWTManager, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := mgr.Validate(raw)
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}
			if claims.Scope != scope {
				api.HandleError(w, api.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsKey, claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetClaims returns the claims stored by Middleware, or nil.
func GetClaims(ctx context.Context) *AdminClaims {
	claims, _ := ctx.Value(ClaimsKey).(*AdminClaims)
	return claims
}
