package realtime

import (
	"context"

	"dessert_market/internal/bidding"
	rediskey "dessert_market/pkg/redis"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisFanout 多实例部署时的出价通知器：发布到 Redis 频道，各实例订阅后喂给本地 hub。
type RedisFanout struct {
	rdb     *rd.Client
	hub     *Hub
	channel string
	log     *logrus.Entry
}

func NewRedisFanout(rdb *rd.Client, hub *Hub, log *logrus.Entry) *RedisFanout {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RedisFanout{
		rdb:     rdb,
		hub:     hub,
		channel: rediskey.BidChannel,
		log:     log.WithField("component", "bid-fanout"),
	}
}

func (f *RedisFanout) NotifyBid(ctx context.Context, u bidding.UpdateBid) error {
	b, err := encodeUpdate(u)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.channel, b).Err()
}

// Start 同步完成订阅后在后台转发，直到 ctx 取消。
func (f *RedisFanout) Start(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				if err := f.hub.Broadcast(ctx, []byte(m.Payload)); err != nil {
					f.log.WithError(err).Debug("fanout stopped")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
