package auth

import (
	"context"
	"net/http"
	"strings"
)

// TokenChecker verifies a session token.
type TokenChecker interface {
	Check(ctx context.Context, token string) (*Claims, error)
}

// Middleware rejects requests without a valid, unrevoked session token.
type Middleware struct {
	Checker TokenChecker
	Policy  Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(checker TokenChecker, policy Policy) *Middleware {
	return &Middleware{Checker: checker, Policy: policy}
}

// Wrap applies auth to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil || m.Checker == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := m.Checker.Check(r.Context(), ExtractToken(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// ExtractToken reads a bearer token, falling back to the access_token query
// parameter used by EventSource clients that cannot set headers.
func ExtractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := extractBearer(r); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
