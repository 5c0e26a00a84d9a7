// Package auth 提供本地账号：注册、登录、签发 JWT、启动时种子管理员。
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"

	"dessert_market/internal/apperr"
	"dessert_market/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid credentials")
	ErrInvalidToken       = apperr.New(apperr.Unauthorized, "invalid token")
	ErrEmailTaken         = apperr.New(apperr.Conflict, "email already registered")
	ErrInvalidEmail       = apperr.New(apperr.Validation, "invalid email")
	ErrWeakPassword       = apperr.New(apperr.Validation, "password must be at least 8 characters")
)

const minPasswordLen = 8

type Service struct {
	db     *gorm.DB
	tokens *Tokens
	cost   int
	log    *logrus.Entry
}

func NewService(db *gorm.DB, tokens *Tokens, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{db: db, tokens: tokens, cost: bcrypt.DefaultCost, log: log.WithField("component", "auth")}
}

// Register 新建普通用户。
func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	return s.create(ctx, email, password, model.RoleUser)
}

func (s *Service) create(ctx context.Context, email, password, role string) (*model.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Email: email, PasswordHash: string(hashed), Role: role}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// Login 校验密码并签发令牌。
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(UserID(u.ID), u.Email, u.Role)
	if err != nil {
		return "", nil, err
	}
	return token, &u, nil
}

// SeedAdmin 管理员不存在时创建；已存在则不动。
func (s *Service) SeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.create(ctx, email, password, model.RoleAdmin)
	if errors.Is(err, ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.WithField("email", normalizeEmail(email)).Info("admin user seeded")
	return nil
}

func (s *Service) Tokens() *Tokens { return s.tokens }

// UserID 用户主键在令牌与出价记录中的字符串形式。
func UserID(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
