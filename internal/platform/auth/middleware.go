package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MiddlewareOption customises a Middleware.
type MiddlewareOption func(*Middleware)

// WithSkipper bypasses verification for requests matched by skip.
func WithSkipper(skip func(*http.Request) bool) MiddlewareOption {
	return func(m *Middleware) {
		m.skip = skip
	}
}

// WithRejectHook registers a callback invoked before a 401 is written.
func WithRejectHook(hook func(*http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.reject = hook
	}
}

// Middleware verifies bearer tokens and stores the resulting claims on the request context.
type Middleware struct {
	cfg    Config
	skip   func(*http.Request) bool
	reject func(*http.Request, error)
}

// NewMiddleware constructs a Middleware verifying tokens against cfg.
func NewMiddleware(cfg Config, opts ...MiddlewareOption) Middleware {
	m := Middleware{cfg: cfg}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Wrap wraps an http.Handler with authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip != nil && m.skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := BearerToken(r.Header.Get("Authorization"))
		var claims *Claims
		if err == nil {
			claims, err = Parse(r.Context(), token, m.cfg)
		}
		if err != nil {
			if m.reject != nil {
				m.reject(r, err)
			}
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// BearerToken extracts the token from an Authorization header value. The scheme is matched
// case-insensitively.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", fmt.Errorf("%w: expected Bearer scheme", ErrInvalidToken)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// writeUnauthorized follows RFC 6750: no error code when credentials are absent.
func writeUnauthorized(w http.ResponseWriter, err error) {
	challenge := "Bearer"
	if !errors.Is(err, ErrMissingToken) {
		challenge = `Bearer error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": err.Error()})
}
