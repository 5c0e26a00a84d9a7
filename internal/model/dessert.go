package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dessert 商店在售甜品：名称、单价、可售库存
type Dessert struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string          `gorm:"size:100;not null" json:"name"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	ImagePath   string          `gorm:"size:255" json:"image_path"`
	// Quantity 是扣除全部购物车预占之后的可售数量，不允许为负。
	Quantity    int  `gorm:"not null;default:0" json:"quantity"`
	IsAvailable bool `gorm:"not null" json:"is_available"`
}

func (Dessert) TableName() string { return "desserts" }
