package realtime

import (
	"encoding/json"

	"dessert_market/internal/bidding"

	"github.com/shopspring/decimal"
)

const (
	TypePlaceBid    = "place_bid"
	TypeUpdateBid   = "UpdateBid"
	TypeBidRejected = "bid_rejected"
	TypeError       = "error"
)

// inbound 客户端发来的消息。
type inbound struct {
	Type      string          `json:"type"`
	ListingID uint            `json:"listingId"`
	Amount    decimal.Decimal `json:"amount"`
}

// UpdateBidMessage 广播给所有客户端。
type UpdateBidMessage struct {
	Type      string `json:"type"`
	ListingID uint   `json:"listingId"`
	Amount    string `json:"amount"`
	UserID    string `json:"userId"`
}

// RejectedMessage 只回给出价人。
type RejectedMessage struct {
	Type      string `json:"type"`
	ListingID uint   `json:"listingId"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func encodeUpdate(u bidding.UpdateBid) ([]byte, error) {
	return json.Marshal(UpdateBidMessage{
		Type:      TypeUpdateBid,
		ListingID: u.ListingID,
		Amount:    u.Amount.StringFixed(2),
		UserID:    u.UserID,
	})
}
