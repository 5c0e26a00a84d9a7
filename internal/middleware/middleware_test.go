package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dessert_market/internal/auth"
	"dessert_market/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func do(r http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://shop.example"}))
	r.GET("/api/desserts", func(c *gin.Context) { c.Status(http.StatusOK) })

	preflight := http.Header{
		"Origin":                        {"https://shop.example"},
		"Access-Control-Request-Method": {http.MethodPost},
	}
	w := do(r, http.MethodOptions, "/api/desserts", preflight)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = do(r, http.MethodGet, "/api/desserts", http.Header{"Origin": {"https://shop.example"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(r, http.MethodGet, "/api/desserts", http.Header{"Origin": {"https://evil.example"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAuth(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	r := gin.New()
	r.GET("/me", RequireAuth(tokens), func(c *gin.Context) {
		claims, ok := Claims(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.UserID)
	})
	r.GET("/admin", RequireAuth(tokens, model.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	user, err := tokens.Issue("7", "u@x.io", model.RoleUser)
	require.NoError(t, err)
	admin, err := tokens.Issue("1", "a@x.io", model.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me?token=bogus", nil).Code)

	w := do(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer " + user}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", w.Body.String())

	w = do(r, http.MethodGet, "/me?token="+user, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin?token="+user, nil).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/admin?token="+admin, nil).Code)
}

func TestOptionalAuth(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	r := gin.New()
	r.GET("/", OptionalAuth(tokens), func(c *gin.Context) {
		if claims, ok := Claims(c); ok {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	token, err := tokens.Issue("9", "x@y.z", model.RoleUser)
	require.NoError(t, err)

	assert.Equal(t, "anonymous", do(r, http.MethodGet, "/", nil).Body.String())
	assert.Equal(t, "anonymous", do(r, http.MethodGet, "/?token=bad", nil).Body.String())
	assert.Equal(t, "9", do(r, http.MethodGet, "/?token="+token, nil).Body.String())
}

func limitedEngine(rl *RateLimiter) *gin.Engine {
	r := gin.New()
	r.POST("/cart/add", rl.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRedisRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	defer rdb.Close()

	r := limitedEngine(NewRateLimiter(rdb, "cart", 2, time.Minute, "cart_id", quietLog()))
	cookie := http.Header{"Cookie": {"cart_id=abc"}}

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/cart/add", cookie).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/cart/add", cookie).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/cart/add", cookie).Code)

	// 其它购物车不受影响
	other := http.Header{"Cookie": {"cart_id=def"}}
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/cart/add", other).Code)
	assert.True(t, mr.Exists("dessert_market:rate_limit:cart:cart:abc"))
}

func TestRateLimitFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	r := limitedEngine(NewRateLimiter(rdb, "cart", 1, time.Minute, "", quietLog()))
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/cart/add", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/cart/add", nil).Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(quietLog()), Observe(quietLog()))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := do(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"msg":"internal server error"}`, w.Body.String())
}
