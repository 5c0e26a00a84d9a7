package bidding

import (
	"errors"

	"dessert_market/internal/apperr"
)

var (
	ErrListingNotFound   = apperr.New(apperr.NotFound, "listing not found")
	ErrListingClosed     = apperr.New(apperr.Conflict, "bidding on this dessert has closed")
	ErrBidTooLow         = apperr.New(apperr.Validation, "bid must be higher than the current bid")
	ErrBelowStartingBid  = apperr.New(apperr.Validation, "bid must be at least the starting bid")
	ErrInvalidAmount     = apperr.New(apperr.Validation, "bid amount must be positive")
	ErrMissingBidder     = apperr.New(apperr.Unauthorized, "bidder is required")
	ErrAuctionNotActive  = apperr.New(apperr.Validation, "no active auction")
	ErrNoActiveAuction   = apperr.New(apperr.NotFound, "no active auction")
	ErrAuctionNotFound   = apperr.New(apperr.NotFound, "auction not found")
	ErrInvalidWindow     = apperr.New(apperr.Validation, "end time must be after start time")
	ErrAuctionOverlap    = apperr.New(apperr.Conflict, "an auction is already scheduled during this time period")
	ErrAuctionLive       = apperr.New(apperr.Conflict, "another auction is live; end it before scheduling a new one")
	ErrEmptyAuctionName  = apperr.New(apperr.Validation, "auction name is required")
	ErrEmptyListingName  = apperr.New(apperr.Validation, "listing name is required")
	ErrInvalidStartPrice = apperr.New(apperr.Validation, "starting bid must be positive")
)

// Reason 给被拒出价一个稳定的短标签，用于指标与 bid_rejected 消息。
func Reason(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrBidTooLow):
		return "too_low"
	case errors.Is(err, ErrBelowStartingBid):
		return "below_starting_bid"
	case errors.Is(err, ErrListingClosed):
		return "closed"
	case errors.Is(err, ErrListingNotFound):
		return "not_found"
	case errors.Is(err, ErrAuctionNotActive):
		return "no_active_auction"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrMissingBidder):
		return "unauthenticated"
	default:
		return "error"
	}
}
