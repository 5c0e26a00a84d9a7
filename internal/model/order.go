package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态
type OrderStatus int

const (
	OrderPending   OrderStatus = iota // 已落单，待下游确认
	OrderConfirmed                    // 事件已被消费确认
)

// Order 结账后由购物车转成的订单
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderNo   string          `gorm:"size:64;uniqueIndex;not null" json:"order_no"`
	CartID    string          `gorm:"size:64;not null;index" json:"cart_id"`
	SessionID string          `gorm:"size:255;uniqueIndex;not null" json:"session_id"`
	Total     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Status    OrderStatus     `gorm:"not null;default:0" json:"status"`
	Lines     []OrderLine     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"lines"`
}

func (Order) TableName() string { return "orders" }

// OrderLine 订单明细，保留下单时的名称与单价。
type OrderLine struct {
	ID        uint            `gorm:"primarykey" json:"id"`
	OrderID   uint            `gorm:"not null;index" json:"order_id"`
	DessertID uint            `gorm:"not null" json:"dessert_id"`
	Name      string          `gorm:"size:100;not null" json:"name"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Quantity  int             `gorm:"not null" json:"quantity"`
}

func (OrderLine) TableName() string { return "order_lines" }

// All 列出需要自动建表的模型。
func All() []any {
	return []any{
		&User{},
		&Dessert{}, &CartItem{},
		&Auction{}, &Listing{}, &Bid{},
		&CheckoutSession{}, &Order{}, &OrderLine{},
	}
}
