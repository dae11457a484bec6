package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"helix/internal/redis"
	"helix/internal/supabase"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func TestVerifyLocalJWT(t *testing.T) {
	v := NewVerifier(nil, testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "user-1",
		"email": "naruto@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	ident, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: "user-1", Email: "naruto@example.com"}, ident)
}

func TestVerifyLocalJWTRejectsBadTokens(t *testing.T) {
	v := NewVerifier(nil, testSecret)
	ctx := context.Background()

	expired := signToken(t, testSecret, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Minute).Unix()})
	_, err := v.Verify(ctx, expired)
	assert.Error(t, err)

	wrongKey := signToken(t, "another-secret-another-secret-another", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(ctx, wrongKey)
	assert.Error(t, err)

	noSubject := signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(ctx, noSubject)
	assert.Error(t, err)

	noExpiry := signToken(t, testSecret, jwt.MapClaims{"sub": "u"})
	_, err = v.Verify(ctx, noExpiry)
	assert.Error(t, err)

	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestVerifyRemoteCachesSuccessOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"user-9","email":"sakura@example.com"}`))
	}))
	defer srv.Close()

	cache := newMemoryCache()
	v := NewVerifier(supabase.New(srv.URL, "anon"), "").WithCache(cache, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ident, err := v.Verify(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "user-9", ident.UserID)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, time.Minute, cache.ttls[cacheKey("good")])

	for i := 0; i < 2; i++ {
		_, err := v.Verify(ctx, "bad")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.NotContains(t, cache.data, cacheKey("bad"))
}

func TestVerifyLocalBoundsCacheTTLByExpiry(t *testing.T) {
	cache := newMemoryCache()
	v := NewVerifier(nil, testSecret).WithCache(cache, time.Hour)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(2 * time.Minute).Unix()})

	_, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	ttl := cache.ttls[cacheKey(token)]
	assert.True(t, ttl > 0 && ttl <= 2*time.Minute, "ttl %s", ttl)
}

func TestVerifyWithoutBackends(t *testing.T) {
	_, err := NewVerifier(nil, "").Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewVerifier(nil, testSecret)
	good := signToken(t, testSecret, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})

	router := gin.New()
	router.Use(v.Optional())
	router.GET("/open", func(c *gin.Context) {
		ident, ok := IdentityFromContext(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, ident.UserID)
	})
	router.GET("/closed", v.Required(), func(c *gin.Context) {
		ident, _ := IdentityFromContext(c)
		c.String(http.StatusOK, ident.UserID)
	})

	cases := []struct {
		path   string
		header string
		status int
		body   string
	}{
		{"/open", "", http.StatusOK, "anonymous"},
		{"/open", "Bearer garbage", http.StatusOK, "anonymous"},
		{"/open", "Bearer " + good, http.StatusOK, "user-1"},
		{"/closed", "", http.StatusUnauthorized, `{"error":"authorization required"}`},
		{"/closed", "Bearer garbage", http.StatusUnauthorized, `{"error":"authorization required"}`},
		{"/closed", "bearer " + good, http.StatusOK, "user-1"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, tc.status, rec.Code, tc.path+" "+tc.header)
		assert.Equal(t, tc.body, rec.Body.String(), tc.path+" "+tc.header)
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("  bearer   abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer"))
}
