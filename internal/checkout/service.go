// Package checkout 把购物车交给支付方并在支付成功后转成订单。
package checkout

import (
	"context"
	"errors"
	"strings"

	"dessert_market/internal/cart"
	"dessert_market/internal/model"
	"dessert_market/internal/payment"
	"dessert_market/internal/queue"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventSink 接收订单事件（Redis Stream outbox 或进程内确认）。
type EventSink interface {
	OrderPlaced(ctx context.Context, msg queue.OrderMessage) error
}

type Config struct {
	Currency string
	// BaseURL 用于拼接支付成功/取消回跳地址
	BaseURL string
}

type Service struct {
	db       *gorm.DB
	carts    *cart.Service
	provider payment.Provider
	locker   Locker
	events   EventSink
	cfg      Config
	log      *logrus.Entry
}

func NewService(db *gorm.DB, carts *cart.Service, provider payment.Provider, locker Locker, events EventSink, cfg Config, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{
		db:       db,
		carts:    carts,
		provider: provider,
		locker:   locker,
		events:   events,
		cfg:      cfg,
		log:      log.WithField("component", "checkout"),
	}
}

// Start 为购物车创建支付会话；购物车保持预占直到支付成功。
func (s *Service) Start(ctx context.Context, cartID string) (*model.CheckoutSession, error) {
	items, err := s.carts.GetCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	req := payment.SessionRequest{
		Currency:   s.cfg.Currency,
		LineItems:  LineItems(items),
		SuccessURL: s.cfg.BaseURL + "/checkout/success?session_id=" + payment.SessionIDPlaceholder,
		CancelURL:  s.cfg.BaseURL + "/checkout/cancel?session_id=" + payment.SessionIDPlaceholder,
		Reference:  cartID,
	}
	ps, err := s.provider.CreateSession(ctx, req)
	if err != nil {
		return nil, err
	}

	cs := &model.CheckoutSession{
		ID:          ps.ID,
		CartID:      cartID,
		AmountCents: req.AmountCents(),
		Currency:    s.cfg.Currency,
		URL:         ps.URL,
		Status:      model.CheckoutPending,
	}
	if err := s.db.WithContext(ctx).Create(cs).Error; err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"cart_id":      cartID,
		"session_id":   cs.ID,
		"amount_cents": cs.AmountCents,
	}).Info("checkout started")
	return cs, nil
}

// LineItems 购物车行转支付行：单价 ×100 取整为分。
func LineItems(items []model.CartItem) []payment.LineItem {
	out := make([]payment.LineItem, 0, len(items))
	for _, it := range items {
		li := payment.LineItem{
			UnitAmountCents: payment.ToCents(it.Price),
			Quantity:        int64(it.Quantity),
		}
		if it.Dessert != nil {
			li.Name = it.Dessert.Name
			li.Description = it.Dessert.Description
		}
		out = append(out, li)
	}
	return out
}

// Complete 支付成功回调：向支付方确认收款后消耗购物车预占并落订单。
// 购物车金额与会话金额不一致时拒绝；重复调用返回同一订单。
func (s *Service) Complete(ctx context.Context, sessionID string) (*model.Order, error) {
	cs, err := s.session(s.db.WithContext(ctx), sessionID)
	if err != nil {
		return nil, err
	}
	switch cs.Status {
	case model.CheckoutCompleted:
		return s.orderBySession(ctx, sessionID)
	case model.CheckoutCancelled:
		return nil, ErrSessionCancelled
	}

	paid, err := s.provider.Paid(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, ErrNotPaid
	}

	release, ok, err := s.locker.TryLock(ctx, cs.CartID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCheckoutBusy
	}
	defer release()

	var (
		order   model.Order
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 加锁后重读，另一个请求可能已经完成
		cur, err := s.session(tx, sessionID)
		if err != nil {
			return err
		}
		if cur.Status == model.CheckoutCompleted {
			return tx.Preload("Lines").Where("session_id = ?", sessionID).First(&order).Error
		}
		if cur.Status == model.CheckoutCancelled {
			return ErrSessionCancelled
		}

		items, err := cart.TakeItems(tx, cur.CartID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}
		// 订单必须与已收款金额一致；发起支付后又改过购物车则整笔回滚
		if cartCents := (payment.SessionRequest{LineItems: LineItems(items)}).AmountCents(); cartCents != cur.AmountCents {
			s.log.WithFields(logrus.Fields{
				"session_id": sessionID,
				"paid_cents": cur.AmountCents,
				"cart_cents": cartCents,
			}).Warn("cart changed after checkout started")
			return ErrCartChanged
		}

		order = model.Order{
			OrderNo:   "DM" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
			CartID:    cur.CartID,
			SessionID: sessionID,
			Total:     cart.Total(items),
			Status:    model.OrderPending,
		}
		for _, it := range items {
			line := model.OrderLine{
				DessertID: it.DessertID,
				UnitPrice: it.Price,
				Quantity:  it.Quantity,
			}
			if it.Dessert != nil {
				line.Name = it.Dessert.Name
			}
			order.Lines = append(order.Lines, line)
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		created = true
		return tx.Model(&model.CheckoutSession{}).Where("id = ?", sessionID).Updates(map[string]any{
			"status":   model.CheckoutCompleted,
			"order_no": order.OrderNo,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.log.WithFields(logrus.Fields{
			"order_no":   order.OrderNo,
			"cart_id":    order.CartID,
			"session_id": sessionID,
			"total":      order.Total.StringFixed(2),
		}).Info("order placed")
		s.emit(ctx, &order)
	}
	return &order, nil
}

func (s *Service) emit(ctx context.Context, o *model.Order) {
	if s.events == nil {
		return
	}
	items := 0
	for _, l := range o.Lines {
		items += l.Quantity
	}
	msg := queue.OrderMessage{
		OrderNo:    o.OrderNo,
		CartID:     o.CartID,
		SessionID:  o.SessionID,
		TotalCents: payment.ToCents(o.Total),
		Items:      items,
	}
	if err := s.events.OrderPlaced(ctx, msg); err != nil {
		// 订单已落库，事件丢失只影响下游确认
		s.log.WithError(err).WithField("order_no", o.OrderNo).Error("order event append failed")
	}
}

// Cancel 用户在支付页取消；购物车原样保留。
func (s *Service) Cancel(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	var cs *model.CheckoutSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cs, err = s.session(tx, sessionID)
		if err != nil {
			return err
		}
		switch cs.Status {
		case model.CheckoutCompleted:
			return ErrAlreadyCompleted
		case model.CheckoutCancelled:
			return nil
		}
		cs.Status = model.CheckoutCancelled
		return tx.Model(cs).Update("status", model.CheckoutCancelled).Error
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// GetOrder 按订单号查询（含明细）。
func (s *Service) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Preload("Lines").Where("order_no = ?", orderNo).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Service) orderBySession(ctx context.Context, sessionID string) (*model.Order, error) {
	var o model.Order
	if err := s.db.WithContext(ctx).Preload("Lines").Where("session_id = ?", sessionID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Service) session(tx *gorm.DB, id string) (*model.CheckoutSession, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	var cs model.CheckoutSession
	if err := tx.Where("id = ?", id).First(&cs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &cs, nil
}
