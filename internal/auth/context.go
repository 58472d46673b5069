package auth

import "context"

type contextKey string

const contextKeyClaims contextKey = "auth.claims"

// WithClaims stores the verified claims in context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// ClaimsFromContext extracts verified claims from context.
func ClaimsFromContext(ctx context.Context) *Claims {
	if ctx == nil {
		return nil
	}
	claims, _ := ctx.Value(contextKeyClaims).(*Claims)
	return claims
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

// EmailFromContext extracts the signed-in email from context.
func EmailFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Email
	}
	return ""
}
