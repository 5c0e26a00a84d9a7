package queue

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Consumer struct {
	r         *kafka.Reader
	confirmer *Confirmer
	log       *logrus.Entry
}

func NewConsumer(brokers []string, topic, groupID string, confirmer *Confirmer, log *logrus.Entry) *Consumer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		confirmer: confirmer,
		log:       log.WithField("component", "order-consumer"),
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}
		c.handle(ctx, m.Value)
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) {
	var msg OrderMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		c.log.WithError(err).Warn("consumer unmarshal")
		return
	}
	if _, err := c.confirmer.Apply(ctx, msg); err != nil {
		c.log.WithError(err).WithField("order_no", msg.OrderNo).Error("confirm order")
	}
}
