package auth

import (
	"context"
	"time"

	authlib "github.com/qiuhuiming/titan-track/internal/platform/auth"
)

// Claims mirrors the shared auth claims type for service convenience.
type Claims = authlib.Claims

// Config mirrors the shared auth config.
type Config = authlib.Config

// KeySet mirrors the shared verification key set.
type KeySet = authlib.KeySet

// NewKeySet builds the key set used by the middleware from a secret and an optional JWKS endpoint.
func NewKeySet(secret, jwksURL string, refresh time.Duration) *KeySet {
	if jwksURL == "" {
		return authlib.NewKeySet(secret)
	}
	return authlib.NewKeySet(secret, authlib.WithJWKS(jwksURL, refresh))
}

// WithClaims stores the claims in the request context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return authlib.WithClaims(ctx, claims)
}

// FromContext retrieves claims from context.
func FromContext(ctx context.Context) (*Claims, bool) {
	return authlib.FromContext(ctx)
}
