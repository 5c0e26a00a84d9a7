package queue

import (
	"context"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 将订单事件追加到 Redis Stream，由 Relay 异步转发 Kafka。
type Outbox struct {
	rdb    *rd.Client
	stream string
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

// OrderPlaced 入流一条订单事件。
func (o *Outbox) OrderPlaced(ctx context.Context, msg OrderMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: msg.streamValues(),
	}).Err()
}
