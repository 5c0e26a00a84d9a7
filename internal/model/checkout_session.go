package model

import "time"

// CheckoutStatus 描述支付会话状态机。
type CheckoutStatus int

const (
	CheckoutPending   CheckoutStatus = iota // 已跳转支付、购物车仍占库存
	CheckoutCompleted                       // 支付成功，购物车已消耗为订单
	CheckoutCancelled                       // 用户取消，购物车保持不变
)

func (s CheckoutStatus) String() string {
	switch s {
	case CheckoutPending:
		return "pending"
	case CheckoutCompleted:
		return "completed"
	case CheckoutCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CheckoutSession 记录一次支付会话，ID 即支付方返回的 session id。
type CheckoutSession struct {
	ID        string    `gorm:"primarykey;size:255" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CartID      string         `gorm:"size:64;not null;index" json:"cart_id"`
	AmountCents int64          `gorm:"not null" json:"amount_cents"`
	Currency    string         `gorm:"size:8;not null" json:"currency"`
	URL         string         `gorm:"size:1024" json:"url"`
	Status      CheckoutStatus `gorm:"not null;default:0;index" json:"status"`
	OrderNo     string         `gorm:"size:64;index" json:"order_no"`
}

func (CheckoutSession) TableName() string { return "checkout_sessions" }
