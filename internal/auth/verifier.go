package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"helix/internal/redis"
	"helix/internal/supabase"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	cacheKeyPrefix  = "helix:auth:"
	DefaultCacheTTL = 5 * time.Minute
)

var (
	ErrNoToken     = errors.New("token required")
	ErrUnavailable = errors.New("token verification unavailable")
)

// Identity is the verified caller.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
}

// TokenCache stores verified identities keyed by token digest.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier resolves bearer tokens to identities, locally when a signing secret
// is configured and through the auth endpoint otherwise.
type Verifier struct {
	remote   *supabase.Client
	secret   []byte
	cache    TokenCache
	cacheTTL time.Duration
}

// NewVerifier builds a verifier. remote may be nil when jwtSecret is set.
func NewVerifier(remote *supabase.Client, jwtSecret string) *Verifier {
	v := &Verifier{remote: remote, cacheTTL: DefaultCacheTTL}
	if jwtSecret != "" {
		v.secret = []byte(jwtSecret)
	}
	return v
}

// WithCache enables the identity cache.
func (v *Verifier) WithCache(cache TokenCache, ttl time.Duration) *Verifier {
	v.cache = cache
	if ttl > 0 {
		v.cacheTTL = ttl
	}
	return v
}

// Verify returns the identity behind token. Only successful results are cached.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	key := cacheKey(token)
	if ident := v.cached(ctx, key); ident != nil {
		return ident, nil
	}

	var (
		ident *Identity
		ttl   = v.cacheTTL
		err   error
	)
	switch {
	case v.secret != nil:
		var expires time.Time
		ident, expires, err = v.verifyLocal(token)
		if err == nil && !expires.IsZero() {
			if left := time.Until(expires); left < ttl {
				ttl = left
			}
		}
	case v.remote != nil:
		ident, err = v.verifyRemote(ctx, token)
	default:
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}

	v.store(ctx, key, ident, ttl)
	return ident, nil
}

func (v *Verifier) verifyLocal(token string) (*Identity, time.Time, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("verify token: %w", err)
	}
	if claims.Subject == "" {
		return nil, time.Time{}, errors.New("verify token: missing subject")
	}
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, expires, nil
}

func (v *Verifier) verifyRemote(ctx context.Context, token string) (*Identity, error) {
	user, err := v.remote.GetUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return &Identity{UserID: user.ID, Email: user.Email}, nil
}

func (v *Verifier) cached(ctx context.Context, key string) *Identity {
	if v.cache == nil {
		return nil
	}
	raw, err := v.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("token cache read failed")
		}
		return nil
	}
	var ident Identity
	if err := json.Unmarshal([]byte(raw), &ident); err != nil || ident.UserID == "" {
		return nil
	}
	return &ident
}

func (v *Verifier) store(ctx context.Context, key string, ident *Identity, ttl time.Duration) {
	if v.cache == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(ident)
	if err != nil {
		return
	}
	if err := v.cache.Set(ctx, key, string(raw), ttl); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("token cache write failed")
	}
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
