package redis

import "fmt"

// BidChannel 跨实例广播已接受出价的 pub/sub 频道。
const BidChannel = "dessert_market:bids"

// StockKey 统一约定甜品可售库存缓存键名。
func StockKey(dessertID uint) string {
	return fmt.Sprintf("dessert_market:stock:%d", dessertID)
}

// CheckoutLockKey 结账完成时按购物车加锁，防止同一购物车被并发转成订单。
func CheckoutLockKey(cartID string) string {
	return fmt.Sprintf("dessert_market:checkout:lock:%s", cartID)
}

// RateLimitKey 限流计数键，scope 为 user/cart/ip。
func RateLimitKey(route, scope, id string) string {
	return fmt.Sprintf("dessert_market:rate_limit:%s:%s:%s", route, scope, id)
}
