package bidding

import (
	"context"
	"errors"
	"strings"
	"time"

	"dessert_market/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BidSummary 单个拍品在某场拍卖中的出价汇总。
type BidSummary struct {
	ListingID     uint            `json:"listing_id"`
	ListingName   string          `json:"listing_name"`
	StartingBid   decimal.Decimal `json:"starting_bid"`
	HighestBid    decimal.Decimal `json:"highest_bid"`
	HighestBidder string          `json:"highest_bidder"`
	TotalBids     int             `json:"total_bids"`
	LastBidAt     *time.Time      `json:"last_bid_at,omitempty"`
}

// CreateAuction 创建场次并把所有拍品重置为 Open（current = starting）。
// 有场次正在进行时拒绝创建。
func (s *Service) CreateAuction(ctx context.Context, name string, start, end time.Time) (*model.Auction, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyAuctionName
	}
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return nil, ErrInvalidWindow
	}

	a := model.Auction{Name: name, StartTime: start, EndTime: end}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []model.Auction
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}
		for _, e := range existing {
			// 闭区间相交即视为重叠
			if !start.After(e.EndTime) && !end.Before(e.StartTime) {
				return ErrAuctionOverlap
			}
		}
		// 重置会清掉进行中场次的出价
		live, err := activeAuction(tx, s.now())
		if err != nil && !errors.Is(err, ErrNoActiveAuction) {
			return err
		}
		if live != nil {
			return ErrAuctionLive
		}
		if err := tx.Create(&a).Error; err != nil {
			return err
		}
		return tx.Model(&model.Listing{}).Where("1 = 1").Updates(map[string]any{
			"current_bid":    gorm.Expr("starting_bid"),
			"current_bidder": "",
			"winning_bid":    decimal.Zero,
			"winning_user":   "",
			"closed":         false,
			"closed_at":      nil,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"auction_id": a.ID,
		"start":      start,
		"end":        end,
	}).Info("auction created")
	return &a, nil
}

// GetActiveAuction 返回当前时间所在的场次。
func (s *Service) GetActiveAuction(ctx context.Context) (*model.Auction, error) {
	return activeAuction(s.db.WithContext(ctx), s.now())
}

func activeAuction(tx *gorm.DB, now time.Time) (*model.Auction, error) {
	var as []model.Auction
	if err := tx.Where("finalized = ?", false).Order("start_time").Find(&as).Error; err != nil {
		return nil, err
	}
	for i := range as {
		if as[i].ActiveAt(now) {
			return &as[i], nil
		}
	}
	return nil, ErrNoActiveAuction
}

// ListAuctions 按开始时间倒序。
func (s *Service) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	var as []model.Auction
	err := s.db.WithContext(ctx).Order("start_time DESC").Find(&as).Error
	return as, err
}

func (s *Service) GetAuction(ctx context.Context, id uint) (*model.Auction, error) {
	var a model.Auction
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	return &a, nil
}

// EndAuction 管理员提前结束：固化赢家、关闭拍品、结束时间改为现在。重复调用无副作用。
func (s *Service) EndAuction(ctx context.Context, id uint) (*model.Auction, error) {
	a, err := s.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Finalized {
		return a, nil
	}
	now := s.now()
	if a.EndTime.After(now) {
		a.EndTime = now
	}
	if err := s.finalize(ctx, a, now); err != nil {
		return nil, err
	}
	return a, nil
}

// CloseExpired 结算所有已过结束时间但未结算的场次，由定时任务调用。
func (s *Service) CloseExpired(ctx context.Context) (int, error) {
	var as []model.Auction
	if err := s.db.WithContext(ctx).Where("finalized = ?", false).Find(&as).Error; err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for i := range as {
		if !now.After(as[i].EndTime) {
			continue
		}
		if err := s.finalize(ctx, &as[i], now); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Service) finalize(ctx context.Context, a *model.Auction, now time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 只有出现过出价的拍品才有赢家
		if err := tx.Model(&model.Listing{}).
			Where("closed = ? AND current_bidder <> ''", false).
			Updates(map[string]any{
				"winning_bid":  gorm.Expr("current_bid"),
				"winning_user": gorm.Expr("current_bidder"),
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Listing{}).
			Where("closed = ?", false).
			Updates(map[string]any{"closed": true, "closed_at": now}).Error; err != nil {
			return err
		}
		a.Finalized = true
		return tx.Model(a).Updates(map[string]any{
			"end_time":  a.EndTime,
			"finalized": true,
		}).Error
	})
	if err != nil {
		return err
	}
	s.log.WithField("auction_id", a.ID).Info("auction finalized")
	return nil
}

// BidSummaries 汇总场次时间窗内每个拍品的出价情况。
func (s *Service) BidSummaries(ctx context.Context, auctionID uint) ([]BidSummary, error) {
	a, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	listings, err := s.ListListings(ctx)
	if err != nil {
		return nil, err
	}
	var bids []model.Bid
	if err := s.db.WithContext(ctx).Order("id").Find(&bids).Error; err != nil {
		return nil, err
	}

	byListing := make(map[uint]*BidSummary, len(listings))
	out := make([]BidSummary, len(listings))
	for i, l := range listings {
		out[i] = BidSummary{
			ListingID:   l.ID,
			ListingName: l.Name,
			StartingBid: l.StartingBid,
			HighestBid:  l.StartingBid,
		}
		byListing[l.ID] = &out[i]
	}
	for _, b := range bids {
		sum, ok := byListing[b.ListingID]
		if !ok || !a.ActiveAt(b.CreatedAt) {
			continue
		}
		sum.TotalBids++
		if b.Amount.GreaterThan(sum.HighestBid) || (sum.HighestBidder == "" && b.Amount.Equal(sum.HighestBid)) {
			sum.HighestBid = b.Amount
			sum.HighestBidder = b.UserID
		}
		if sum.LastBidAt == nil || b.CreatedAt.After(*sum.LastBidAt) {
			at := b.CreatedAt
			sum.LastBidAt = &at
		}
	}
	return out, nil
}
