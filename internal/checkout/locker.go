package checkout

import (
	"context"
	"sync"
)

// Locker 按购物车加互斥锁；Redis 实现见 pkg/redis.CartLocker。
type Locker interface {
	TryLock(ctx context.Context, cartID string) (release func(), ok bool, err error)
}

// LocalLocker 单实例部署时的进程内实现。
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, cartID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[cartID]; busy {
		return nil, false, nil
	}
	l.held[cartID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, cartID)
			l.mu.Unlock()
		})
	}, true, nil
}
