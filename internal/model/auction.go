package model

import "time"

// Auction 拍卖场次；是否进行中由时间窗推导。
type Auction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string    `gorm:"size:128;not null" json:"name"`
	StartTime time.Time `gorm:"not null;index" json:"start_time"`
	EndTime   time.Time `gorm:"not null;index" json:"end_time"`
	// Finalized 表示已结算（赢家已固化）
	Finalized bool `gorm:"not null;index" json:"finalized"`
}

func (Auction) TableName() string { return "auctions" }

// ActiveAt 闭区间 [StartTime, EndTime]
func (a Auction) ActiveAt(t time.Time) bool {
	return !t.Before(a.StartTime) && !t.After(a.EndTime)
}
