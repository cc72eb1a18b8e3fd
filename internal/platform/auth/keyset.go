package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// ErrUnknownKey is returned when a token names a key id the JWKS document does not contain.
var ErrUnknownKey = errors.New("unknown signing key")

// KeySet holds the verification material for bearer tokens: a shared HMAC secret and,
// optionally, a remote JWKS document cached for a fixed interval. Build one at start-up
// and hand it to every parser; it is safe for concurrent use.
type KeySet struct {
	secret  []byte
	jwksURL string
	ttl     time.Duration
	now     func() time.Time
	fetch   func(ctx context.Context, url string) (jwk.Set, error)

	mu        sync.RWMutex
	remote    jwk.Set
	fetchedAt time.Time
}

// KeySetOption customises a KeySet.
type KeySetOption func(*KeySet)

// WithJWKS enables RS256 verification against the JWKS document at url, refetched after ttl.
func WithJWKS(url string, ttl time.Duration) KeySetOption {
	return func(k *KeySet) {
		k.jwksURL = url
		if ttl > 0 {
			k.ttl = ttl
		}
	}
}

// WithKeySetClock overrides the clock used for cache expiry.
func WithKeySetClock(now func() time.Time) KeySetOption {
	return func(k *KeySet) { k.now = now }
}

// NewKeySet constructs a KeySet. An empty secret disables HS256.
func NewKeySet(secret string, opts ...KeySetOption) *KeySet {
	k := &KeySet{
		secret: []byte(secret),
		ttl:    time.Hour,
		now:    time.Now,
		fetch: func(ctx context.Context, url string) (jwk.Set, error) {
			return jwk.Fetch(ctx, url)
		},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Methods lists the signing algorithms this key set can verify.
func (k *KeySet) Methods() []string {
	methods := make([]string, 0, 2)
	if len(k.secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Name)
	}
	if k.jwksURL != "" {
		methods = append(methods, jwt.SigningMethodRS256.Name)
	}
	return methods
}

// Refresh fetches the JWKS document unconditionally.
func (k *KeySet) Refresh(ctx context.Context) error {
	if k.jwksURL == "" {
		return nil
	}
	set, err := k.fetch(ctx, k.jwksURL)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	k.mu.Lock()
	k.remote = set
	k.fetchedAt = k.now()
	k.mu.Unlock()
	return nil
}

// Keyfunc resolves the verification key for a parsed token header.
func (k *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(k.secret) == 0 {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return k.secret, nil
		case *jwt.SigningMethodRSA:
			kid, _ := t.Header["kid"].(string)
			return k.remoteKey(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
	}
}

func (k *KeySet) remoteKey(ctx context.Context, kid string) (interface{}, error) {
	if k.jwksURL == "" {
		return nil, ErrUnknownKey
	}

	set, stale := k.cached()
	if set == nil || stale {
		if err := k.Refresh(ctx); err != nil {
			return nil, err
		}
		set, _ = k.cached()
	}

	key, ok := set.LookupKeyID(kid)
	if !ok {
		// Rotated keys show up before the cache expires.
		if err := k.Refresh(ctx); err != nil {
			return nil, err
		}
		set, _ = k.cached()
		if key, ok = set.LookupKeyID(kid); !ok {
			return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
		}
	}

	var raw interface{}
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("export jwk %q: %w", kid, err)
	}
	return raw, nil
}

func (k *KeySet) cached() (jwk.Set, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.remote == nil {
		return nil, true
	}
	return k.remote, k.now().Sub(k.fetchedAt) > k.ttl
}
