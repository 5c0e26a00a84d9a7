// Package bidding 实现拍卖甜品的出价规则与拍卖场次管理。
package bidding

import (
	"context"
	"errors"
	"time"

	"dessert_market/internal/metrics"
	"dessert_market/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UpdateBid 是出价被接受后推送给所有观察者的消息。
type UpdateBid struct {
	ListingID uint            `json:"listingId"`
	Amount    decimal.Decimal `json:"amount"`
	UserID    string          `json:"userId"`
}

// Notifier 在出价提交之后被调用（广播给所有客户端）。
type Notifier interface {
	NotifyBid(ctx context.Context, u UpdateBid) error
}

type Option func(*Service)

// WithActiveAuctionRule 让 Submit 走拍卖场次规则（ProcessBid）而不是最简规则（PlaceBid）。
func WithActiveAuctionRule(on bool) Option {
	return func(s *Service) { s.requireActive = on }
}

// WithClock 替换时间源，测试用。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	db            *gorm.DB
	notifier      Notifier
	requireActive bool
	now           func() time.Time
	log           *logrus.Entry
}

func NewService(db *gorm.DB, notifier Notifier, log *logrus.Entry, opts ...Option) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Service{
		db:       db,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.WithField("component", "bidding"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit 按配置选择出价规则，实时通道与 HTTP 出价都走这里。
func (s *Service) Submit(ctx context.Context, listingID uint, amount decimal.Decimal, userID string) (*UpdateBid, error) {
	if s.requireActive {
		return s.ProcessBid(ctx, listingID, amount, userID)
	}
	return s.PlaceBid(ctx, listingID, amount, userID)
}

// PlaceBid 最简规则：amount 严格大于 currentBid 才接受，平价拒绝。
func (s *Service) PlaceBid(ctx context.Context, listingID uint, amount decimal.Decimal, userID string) (*UpdateBid, error) {
	return s.accept(ctx, listingID, amount, userID, false)
}

// ValidateBid 只读校验：需要进行中的拍卖，amount >= startingBid 且 > currentBid。
func (s *Service) ValidateBid(ctx context.Context, listingID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return s.check(s.db.WithContext(ctx), listingID, amount, true)
}

// ProcessBid 校验通过后接受出价。
func (s *Service) ProcessBid(ctx context.Context, listingID uint, amount decimal.Decimal, userID string) (*UpdateBid, error) {
	return s.accept(ctx, listingID, amount, userID, true)
}

func (s *Service) accept(ctx context.Context, listingID uint, amount decimal.Decimal, userID string, requireActive bool) (*UpdateBid, error) {
	if userID == "" {
		return nil, s.reject(ErrMissingBidder)
	}
	if !amount.IsPositive() {
		return nil, s.reject(ErrInvalidAmount)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.check(tx, listingID, amount, requireActive); err != nil {
			return err
		}
		// 条件更新：并发出价时只有严格更高的那个能命中
		res := tx.Model(&model.Listing{}).
			Where("id = ? AND closed = ? AND current_bid < ?", listingID, false, amount).
			Updates(map[string]any{
				"current_bid":    amount,
				"current_bidder": userID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrBidTooLow
		}
		return tx.Create(&model.Bid{
			CreatedAt: s.now(),
			ListingID: listingID,
			UserID:    userID,
			Amount:    amount,
		}).Error
	})
	if err != nil {
		return nil, s.reject(err)
	}
	metrics.RecordBid(Reason(nil))

	u := UpdateBid{ListingID: listingID, Amount: amount, UserID: userID}
	s.log.WithFields(logrus.Fields{
		"listing_id": listingID,
		"amount":     amount.StringFixed(2),
		"user_id":    userID,
	}).Info("bid accepted")

	// 广播在提交之后；推送失败不影响已接受的出价
	if s.notifier != nil {
		if err := s.notifier.NotifyBid(ctx, u); err != nil {
			s.log.WithError(err).WithField("listing_id", listingID).Warn("bid broadcast failed")
		}
	}
	return &u, nil
}

func (s *Service) check(tx *gorm.DB, listingID uint, amount decimal.Decimal, requireActive bool) error {
	var l model.Listing
	if err := tx.First(&l, listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrListingNotFound
		}
		return err
	}
	if l.Closed {
		return ErrListingClosed
	}
	if requireActive {
		if _, err := activeAuction(tx, s.now()); err != nil {
			if errors.Is(err, ErrNoActiveAuction) {
				return ErrAuctionNotActive
			}
			return err
		}
		if amount.LessThan(l.StartingBid) {
			return ErrBelowStartingBid
		}
	}
	if !amount.GreaterThan(l.CurrentBid) {
		return ErrBidTooLow
	}
	return nil
}

func (s *Service) reject(err error) error {
	metrics.RecordBid(Reason(err))
	return err
}

// GetListing 读取单个拍卖甜品。
func (s *Service) GetListing(ctx context.Context, id uint) (*model.Listing, error) {
	var l model.Listing
	if err := s.db.WithContext(ctx).First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *Service) ListListings(ctx context.Context) ([]model.Listing, error) {
	var ls []model.Listing
	err := s.db.WithContext(ctx).Order("id").Find(&ls).Error
	return ls, err
}

// CreateListing 新增拍卖甜品，当前价从起拍价开始。
func (s *Service) CreateListing(ctx context.Context, l *model.Listing) error {
	if l.Name == "" {
		return ErrEmptyListingName
	}
	if !l.StartingBid.IsPositive() {
		return ErrInvalidStartPrice
	}
	l.ID = 0
	l.CurrentBid = l.StartingBid
	l.CurrentBidder = ""
	l.WinningBid = decimal.Zero
	l.WinningUser = ""
	l.Closed = false
	l.ClosedAt = nil
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *Service) DeleteListing(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Listing{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrListingNotFound
		}
		return tx.Where("listing_id = ?", id).Delete(&model.Bid{}).Error
	})
}

// Bids 返回某拍品的出价记录，最新在前。
func (s *Service) Bids(ctx context.Context, listingID uint) ([]model.Bid, error) {
	var bids []model.Bid
	err := s.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("id DESC").
		Find(&bids).Error
	return bids, err
}
