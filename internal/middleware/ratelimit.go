package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	rediskey "dessert_market/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// luaRateLimit：Redis 滑动窗口限流 Lua 脚本（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间戳，ARGV[2]=窗口开始时间戳，ARGV[3]=窗口秒数，ARGV[4]=成员，ARGV[5]=上限
// 返回：当前窗口内的请求数，超限返回 -1
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)

if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// RateLimiter 优先用 Redis 做跨实例限流；Redis 不可用时退化为进程内令牌桶。
type RateLimiter struct {
	rdb        *rd.Client
	route      string
	limit      int
	window     time.Duration
	cartCookie string
	log        *logrus.Entry

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewRateLimiter(rdb *rd.Client, route string, limit int, window time.Duration, cartCookie string, log *logrus.Entry) *RateLimiter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RateLimiter{
		rdb:        rdb,
		route:      route,
		limit:      limit,
		window:     window,
		cartCookie: cartCookie,
		log:        log.WithField("component", "ratelimit"),
		local:      make(map[string]*rate.Limiter),
	}
}

// Handler 按 用户 > 购物车 > IP 的优先级确定限流主体。
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, id := rl.identify(c)
		if !rl.allow(c, scope, id) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) identify(c *gin.Context) (string, string) {
	if claims, ok := Claims(c); ok {
		return "user", claims.UserID
	}
	if rl.cartCookie != "" {
		if v, err := c.Cookie(rl.cartCookie); err == nil && v != "" {
			return "cart", v
		}
	}
	return "ip", c.ClientIP()
}

func (rl *RateLimiter) allow(c *gin.Context, scope, id string) bool {
	if rl.rdb != nil {
		key := rediskey.RateLimitKey(rl.route, scope, id)
		now := time.Now()
		windowSec := int64(rl.window.Seconds())
		if windowSec < 1 {
			windowSec = 1
		}
		member := fmt.Sprintf("%d-%s", now.UnixNano(), id)
		res, err := rl.rdb.Eval(c.Request.Context(), luaRateLimit, []string{key},
			now.Unix(), now.Unix()-windowSec, windowSec, member, rl.limit).Int()
		if err == nil {
			return res >= 0
		}
		rl.log.WithError(err).Warn("redis rate limit unavailable, using local limiter")
	}
	return rl.localLimiter(scope + ":" + id).Allow()
}

func (rl *RateLimiter) localLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.local[key]
	if !ok {
		every := rl.window / time.Duration(rl.limit)
		l = rate.NewLimiter(rate.Every(every), rl.limit)
		rl.local[key] = l
	}
	return l
}

// Cleanup 限流器数量过多时整体重置。
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.local) > 10000 {
		rl.local = make(map[string]*rate.Limiter)
	}
}
