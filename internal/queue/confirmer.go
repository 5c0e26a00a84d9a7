package queue

import (
	"context"

	"dessert_market/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Confirmer 把订单从 pending 推进到 confirmed；重复事件不产生副作用。
type Confirmer struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewConfirmer(db *gorm.DB, log *logrus.Entry) *Confirmer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Confirmer{db: db, log: log.WithField("component", "order-confirmer")}
}

// Apply 返回本次是否真的改变了状态。
func (c *Confirmer) Apply(ctx context.Context, msg OrderMessage) (bool, error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}
	res := c.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_no = ? AND status = ?", msg.OrderNo, model.OrderPending).
		Update("status", model.OrderConfirmed)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		c.log.WithField("order_no", msg.OrderNo).Info("order confirmed")
	}
	return res.RowsAffected > 0, nil
}

// OrderPlaced 未配置 Kafka 时直接在进程内确认。
func (c *Confirmer) OrderPlaced(ctx context.Context, msg OrderMessage) error {
	_, err := c.Apply(ctx, msg)
	return err
}
