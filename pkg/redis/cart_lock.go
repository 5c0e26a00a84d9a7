package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfMatch 仅当锁值匹配 token 时才删除，避免误删别人续上的锁。
const luaReleaseIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// CartLocker 基于 SETNX 的购物车互斥锁。
type CartLocker struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewCartLocker(rdb *rd.Client, ttl time.Duration) *CartLocker {
	return &CartLocker{rdb: rdb, ttl: ttl}
}

// TryLock 抢锁成功返回 release；锁已被占用时 ok=false。
func (l *CartLocker) TryLock(ctx context.Context, cartID string) (release func(), ok bool, err error) {
	key := CheckoutLockKey(cartID)
	token := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, ok, err
	}
	release = func() {
		// 调用方的 ctx 可能已取消，释放锁用独立超时
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ReleaseIfMatch(rctx, l.rdb, key, token)
	}
	return release, true, nil
}

// ReleaseIfMatch 安全释放锁。
func ReleaseIfMatch(ctx context.Context, rdb *rd.Client, key, token string) error {
	_, err := rdb.Eval(ctx, luaReleaseIfMatch, []string{key}, token).Int()
	return err
}
