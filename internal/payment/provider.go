// Package payment 对接支付会话提供方：本地沙箱或 Stripe Checkout。
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// LineItem 支付页上的一行商品，金额以分计。
type LineItem struct {
	Name            string
	Description     string
	UnitAmountCents int64
	Quantity        int64
}

type SessionRequest struct {
	Currency   string
	LineItems  []LineItem
	SuccessURL string
	CancelURL  string
	// Reference 回传给支付方的业务标识（购物车 id）
	Reference string
}

// Session 支付方返回的会话；URL 是需要跳转的支付页。
type Session struct {
	ID  string
	URL string
}

type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	// Paid 向支付方确认会话已收款（或无需付款）
	Paid(ctx context.Context, sessionID string) (bool, error)
}

// ToCents 元转分，四舍五入到分。
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// AmountCents 汇总会话金额。
func (r SessionRequest) AmountCents() int64 {
	var sum int64
	for _, li := range r.LineItems {
		sum += li.UnitAmountCents * li.Quantity
	}
	return sum
}

func (r SessionRequest) validate() error {
	if len(r.LineItems) == 0 {
		return fmt.Errorf("payment: no line items")
	}
	for _, li := range r.LineItems {
		if li.Quantity <= 0 || li.UnitAmountCents < 0 {
			return fmt.Errorf("payment: invalid line item %q", li.Name)
		}
	}
	if r.SuccessURL == "" || r.CancelURL == "" {
		return fmt.Errorf("payment: success and cancel urls are required")
	}
	return nil
}

// New 按名称构造 provider："sandbox" 或 "stripe"。
func New(name, stripeKey string) (Provider, error) {
	switch strings.ToLower(name) {
	case "", "sandbox":
		return NewSandbox(), nil
	case "stripe":
		if stripeKey == "" {
			return nil, fmt.Errorf("payment: STRIPE_SECRET_KEY is required for the stripe provider")
		}
		return NewStripe(stripeKey), nil
	default:
		return nil, fmt.Errorf("payment: unknown provider %q", name)
	}
}
