package queue

import "fmt"

// OrderMessage 是结账完成后发出的订单事件。
type OrderMessage struct {
	OrderNo    string `json:"order_no"`
	CartID     string `json:"cart_id"`
	SessionID  string `json:"session_id"`
	TotalCents int64  `json:"total_cents"` // 分
	Items      int    `json:"items"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m OrderMessage) Validate() error {
	if m.OrderNo == "" {
		return fmt.Errorf("order_no is required")
	}
	if m.CartID == "" {
		return fmt.Errorf("cart_id is required")
	}
	if m.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if m.Items <= 0 {
		return fmt.Errorf("items must be > 0")
	}
	if m.TotalCents < 0 {
		return fmt.Errorf("total_cents must be >= 0")
	}
	return nil
}

func (m OrderMessage) streamValues() map[string]any {
	return map[string]any{
		"order_no":    m.OrderNo,
		"cart_id":     m.CartID,
		"session_id":  m.SessionID,
		"total_cents": m.TotalCents,
		"items":       m.Items,
	}
}
