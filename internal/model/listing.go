package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing 拍卖甜品。状态机：Open → (更高出价)* → Closed，关闭后不可重开。
type Listing struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string          `gorm:"size:100;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	ImagePath   string          `gorm:"size:255" json:"image_path"`
	StartingBid decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"starting_bid"`

	CurrentBid    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"current_bid"`
	CurrentBidder string          `gorm:"size:64" json:"current_bidder"`

	// 关闭时由 CurrentBid/CurrentBidder 固化
	WinningBid  decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"winning_bid"`
	WinningUser string          `gorm:"size:64" json:"winning_user"`

	Closed   bool       `gorm:"not null;index" json:"closed"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

func (Listing) TableName() string { return "listings" }

// Bid 已接受出价的追加日志。
type Bid struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	ListingID uint            `gorm:"not null;index" json:"listing_id"`
	UserID    string          `gorm:"size:64;not null;index" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
}

func (Bid) TableName() string { return "bids" }
