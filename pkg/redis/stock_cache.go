package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// StockCache 在 Redis 中镜像甜品可售数量，供高频读接口使用；数据库仍是唯一事实来源。
type StockCache struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewStockCache(rdb *rd.Client, ttl time.Duration) *StockCache {
	return &StockCache{rdb: rdb, ttl: ttl}
}

// SetStock 写入最新库存并刷新 TTL。
func (c *StockCache) SetStock(ctx context.Context, dessertID uint, quantity int) error {
	return c.rdb.Set(ctx, StockKey(dessertID), quantity, c.ttl).Err()
}

// GetStock found=false 表示缓存未命中。
func (c *StockCache) GetStock(ctx context.Context, dessertID uint) (int, bool, error) {
	s, err := c.rdb.Get(ctx, StockKey(dessertID)).Result()
	if errors.Is(err, rd.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Invalidate 删除缓存；库存变更提交后调用，下次读取回源重建。
func (c *StockCache) Invalidate(ctx context.Context, dessertID uint) error {
	return c.rdb.Del(ctx, StockKey(dessertID)).Err()
}
