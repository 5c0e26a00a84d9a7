package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem 购物车行：同一购物车内同一甜品只有一行，数量即预占数量。
type CartItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CartID    string   `gorm:"size:64;not null;uniqueIndex:idx_cart_dessert" json:"cart_id"`
	DessertID uint     `gorm:"not null;uniqueIndex:idx_cart_dessert" json:"dessert_id"`
	Dessert   *Dessert `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"dessert,omitempty"`
	Quantity  int      `gorm:"not null" json:"quantity"`
	// Price 为加入购物车时的单价快照
	Price decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
}

func (CartItem) TableName() string { return "cart_items" }

// LineTotal = 单价 × 数量
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
