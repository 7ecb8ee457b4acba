package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ChatHub/config"
	"ChatHub/pkg/ctxmeta"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetClientIP_HeaderPrecedence(t *testing.T) {
	initHandlerTestLogger()

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"real ip wins", map[string]string{headerXRealIP: "10.0.0.1", headerXForwardedFor: "10.0.0.2"}, "10.0.0.1"},
		{"first forwarded hop", map[string]string{headerXForwardedFor: "10.0.0.2, 10.0.0.3"}, "10.0.0.2"},
		{"client ip header", map[string]string{headerXClientIP: "10.0.0.4"}, "10.0.0.4"},
		{"invalid client ip ignored", map[string]string{headerXClientIP: "not-an-ip"}, "192.0.2.1"},
		{"remote addr fallback", nil, "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Request.RemoteAddr = "192.0.2.1:1234"
			for k, v := range tc.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, GetClientIP(c))
		})
	}
}

func TestClientIP_InjectsContext(t *testing.T) {
	initHandlerTestLogger()
	r := gin.New()
	r.Use(ClientIP())
	var fromGin, fromCtx string
	r.GET("/", func(c *gin.Context) {
		fromGin = c.GetString(ctxmeta.KeyClientIP)
		fromCtx = ctxmeta.ClientIP(c.Request.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerXRealIP, "10.1.1.1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "10.1.1.1", fromGin)
	assert.Equal(t, "10.1.1.1", fromCtx)
}

func TestCors_PreflightAndEcho(t *testing.T) {
	initHandlerTestLogger()
	r := gin.New()
	r.Use(Cors())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestJWTAuth_SetsUser(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	token, _, err := e.tokens.Generate("u-1", "alice")
	require.NoError(t, err)

	r := gin.New()
	var user, name string
	r.GET("/me", JWTAuth(e.tokens), func(c *gin.Context) {
		user = CurrentUser(c)
		name = c.GetString(KeyUsername)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", user)
	assert.Equal(t, "alice", name)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIPRateLimit_FailsOpenWithoutRedis(t *testing.T) {
	initHandlerTestLogger()

	// 未配置 Redis
	r := gin.New()
	r.Use(IPRateLimit(NewRedisRateLimiter(nil, 1, 1), NewBlacklist(nil)))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// Redis 不可达
	down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = down.Close() })
	limiter := NewRedisRateLimiter(down, 1, 1)
	assert.True(t, limiter.Allow(context.Background(), "k"))
	assert.False(t, NewBlacklist(down).Contains(context.Background(), "10.0.0.1"))
}

func TestIPRateLimit_ZeroRateDisables(t *testing.T) {
	down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = down.Close() })
	assert.True(t, NewRedisRateLimiter(down, 0, 10).Allow(context.Background(), "k"))
}
