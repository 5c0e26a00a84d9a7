// Package cart 维护购物车行，并保证甜品可售库存与所有购物车预占一致。
package cart

import (
	"context"
	"errors"

	"dessert_market/internal/apperr"
	"dessert_market/internal/metrics"
	"dessert_market/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StockMirror 库存读缓存（例如 Redis）。提交后只做失效，由读路径回源重建，
// 避免并发提交以相反顺序覆盖缓存。
type StockMirror interface {
	Invalidate(ctx context.Context, dessertID uint) error
}

// Service 每个变更操作都在单个事务里完成：库存扣减与购物车行写入同时成功或同时回滚。
type Service struct {
	db     *gorm.DB
	mirror StockMirror
	log    *logrus.Entry
}

func NewService(db *gorm.DB, mirror StockMirror, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{db: db, mirror: mirror, log: log.WithField("component", "cart")}
}

// AddToCart 预占 quantity 件甜品；同购物车同甜品合并为一行。
func (s *Service) AddToCart(ctx context.Context, dessertID uint, cartID string, quantity int) (*model.CartItem, error) {
	if cartID == "" {
		return nil, ErrEmptyCartID
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var (
		item      model.CartItem
		remaining int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := findDessert(tx, dessertID)
		if err != nil {
			return err
		}
		if quantity > d.Quantity {
			return &StockError{Requested: quantity, Available: d.Quantity}
		}

		err = tx.Where("cart_id = ? AND dessert_id = ?", cartID, dessertID).First(&item).Error
		switch {
		case err == nil:
			// 已有行时按 existing+quantity 与当前可售量比较
			if item.Quantity+quantity > d.Quantity {
				return &StockError{Requested: quantity, Available: max(d.Quantity-item.Quantity, 0)}
			}
			if err := debit(tx, dessertID, quantity); err != nil {
				return err
			}
			item.Quantity += quantity
			if err := tx.Model(&item).Update("quantity", item.Quantity).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := debit(tx, dessertID, quantity); err != nil {
				return err
			}
			item = model.CartItem{
				CartID:    cartID,
				DessertID: dessertID,
				Quantity:  quantity,
				Price:     d.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		default:
			return err
		}

		remaining = d.Quantity - quantity
		return nil
	})
	s.record("add", err)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, dessertID)
	s.log.WithFields(logrus.Fields{
		"cart_id":    cartID,
		"dessert_id": dessertID,
		"quantity":   quantity,
		"remaining":  remaining,
	}).Debug("reserved")
	return &item, nil
}

// UpdateQuantity 先把当前预占算回可售量再校验；newQuantity <= 0 等价于移除。
func (s *Service) UpdateQuantity(ctx context.Context, cartItemID uint, newQuantity int) error {
	var dessertID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.CartItem
		if err := tx.First(&item, cartItemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartItemNotFound
			}
			return err
		}
		d, err := findDessert(tx, item.DessertID)
		if err != nil {
			return err
		}
		dessertID = d.ID

		total := d.Quantity + item.Quantity
		if newQuantity > total {
			return &StockError{Requested: newQuantity, Available: total}
		}

		if newQuantity <= 0 {
			return release(tx, item)
		}

		delta := item.Quantity - newQuantity
		if delta != 0 {
			if err := credit(tx, d.ID, delta); err != nil {
				return err
			}
			return tx.Model(&item).Update("quantity", newQuantity).Error
		}
		return nil
	})
	s.record("update", err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, dessertID)
	return nil
}

// RemoveFromCart 归还整行预占并删除该行；行不存在时不做任何事。
func (s *Service) RemoveFromCart(ctx context.Context, cartItemID uint) error {
	var (
		item  model.CartItem
		found bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&item, cartItemID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return release(tx, item)
	})
	s.record("remove", err)
	if err != nil {
		return err
	}
	if found {
		s.invalidate(ctx, item.DessertID)
	}
	return nil
}

// ClearCart 以一个批次归还购物车内全部预占。
func (s *Service) ClearCart(ctx context.Context, cartID string) error {
	if cartID == "" {
		return ErrEmptyCartID
	}
	var touched []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []model.CartItem
		if err := tx.Where("cart_id = ?", cartID).Find(&items).Error; err != nil {
			return err
		}
		for _, it := range items {
			if err := release(tx, it); err != nil {
				return err
			}
			touched = append(touched, it.DessertID)
		}
		return nil
	})
	s.record("clear", err)
	if err != nil {
		return err
	}
	for _, id := range touched {
		s.invalidate(ctx, id)
	}
	return nil
}

// GetCartItems 返回购物车行（含甜品信息）。
func (s *Service) GetCartItems(ctx context.Context, cartID string) ([]model.CartItem, error) {
	var items []model.CartItem
	err := s.db.WithContext(ctx).
		Preload("Dessert").
		Where("cart_id = ?", cartID).
		Order("id").
		Find(&items).Error
	return items, err
}

// GetCartTotal = Σ(单价 × 数量)
func (s *Service) GetCartTotal(ctx context.Context, cartID string) (decimal.Decimal, error) {
	items, err := s.GetCartItems(ctx, cartID)
	if err != nil {
		return decimal.Zero, err
	}
	return Total(items), nil
}

// Total 汇总购物车行金额。
func Total(items []model.CartItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// GetAvailableQuantity 读取当前可售数量。
func (s *Service) GetAvailableQuantity(ctx context.Context, dessertID uint) (int, error) {
	d, err := findDessert(s.db.WithContext(ctx), dessertID)
	if err != nil {
		return 0, err
	}
	return d.Quantity, nil
}

// TakeItems 在调用方事务内取走购物车全部行，不归还库存（预占被结账消耗）。
func TakeItems(tx *gorm.DB, cartID string) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := tx.Preload("Dessert").Where("cart_id = ?", cartID).Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	if err := tx.Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func findDessert(tx *gorm.DB, id uint) (*model.Dessert, error) {
	var d model.Dessert
	if err := tx.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDessertNotFound
		}
		return nil, err
	}
	return &d, nil
}

// debit 条件扣减：只有库存足够时才会命中行，防止并发预占把库存扣成负数。
func debit(tx *gorm.DB, dessertID uint, quantity int) error {
	res := tx.Model(&model.Dessert{}).
		Where("id = ? AND quantity >= ?", dessertID, quantity).
		Update("quantity", gorm.Expr("quantity - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var current int
		if err := tx.Model(&model.Dessert{}).Where("id = ?", dessertID).Select("quantity").Scan(&current).Error; err != nil {
			return err
		}
		return &StockError{Requested: quantity, Available: current}
	}
	return nil
}

// credit 归还（delta > 0）或追加扣减（delta < 0）。
func credit(tx *gorm.DB, dessertID uint, delta int) error {
	if delta < 0 {
		return debit(tx, dessertID, -delta)
	}
	return tx.Model(&model.Dessert{}).
		Where("id = ?", dessertID).
		Update("quantity", gorm.Expr("quantity + ?", delta)).Error
}

// release 归还整行预占并删除该行。
func release(tx *gorm.DB, item model.CartItem) error {
	if err := credit(tx, item.DessertID, item.Quantity); err != nil {
		return err
	}
	return tx.Delete(&model.CartItem{}, item.ID).Error
}

func (s *Service) invalidate(ctx context.Context, dessertID uint) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Invalidate(ctx, dessertID); err != nil {
		s.log.WithError(err).WithField("dessert_id", dessertID).Warn("stock cache invalidate failed")
	}
}

func (s *Service) record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	metrics.RecordCartOp(op, outcome)
}

// ItemInCart 判断购物车行是否属于 cartID，防止跨购物车改动。
func (s *Service) ItemInCart(ctx context.Context, cartID string, cartItemID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.CartItem{}).
		Where("id = ? AND cart_id = ?", cartItemID, cartID).
		Count(&n).Error
	return n > 0, err
}
