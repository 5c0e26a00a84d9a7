package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string
	// SeedFile 可选的 YAML 种子目录
	SeedFile string
	LogLevel string
	// PublicBaseURL 支付回跳地址前缀
	PublicBaseURL string
	// CORSOrigins 允许跨域访问的前端地址（逗号分隔）；为空时不启用 CORS
	CORSOrigins []string

	// RedisAddr 为空时不使用 Redis（本地锁、进程内限流、无库存缓存）
	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）；为空时订单事件在进程内直接确认
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（结账完成后入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// 购物车与出价接口限流
	CartRateLimit   int
	BidRateLimit    int
	RateWindow      time.Duration
	StockCacheTTL   time.Duration
	CheckoutLockTTL time.Duration
	CartCookieName  string

	JWTSecret     string
	JWTTTL        time.Duration
	AdminEmail    string
	AdminPassword string

	PaymentProvider string
	StripeSecretKey string
	Currency        string

	// BidRequireActiveAuction 为 true 时出价额外要求进行中的拍卖且不低于起拍价
	BidRequireActiveAuction bool
	AuctionSweepSpec        string
}

// Load 读取并校验配置，缺失时使用默认值。当前目录存在 .env 时先载入。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBPath:             getEnv("DB_PATH", "dessert_market.db"),
		SeedFile:           getEnv("SEED_FILE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		CORSOrigins:        splitCSV(getEnv("CORS_ORIGINS", "")),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:            0,
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "dessert-market-orders"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "dessert-market-order-consumer"),
		OrderEventStream:   getEnv("ORDER_EVENT_STREAM", "dessert_market:order_events"),
		OrderEventGroup:    getEnv("ORDER_EVENT_GROUP", "dessert-market-relay-group"),
		OrderEventConsumer: getEnv("ORDER_EVENT_CONSUMER", "dessert-market-relay-1"),
		CartRateLimit:      60,
		BidRateLimit:       30,
		RateWindow:         10 * time.Second,
		StockCacheTTL:      24 * time.Hour,
		CheckoutLockTTL:    30 * time.Second,
		CartCookieName:     getEnv("CART_COOKIE_NAME", "cart_id"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTTTL:             24 * time.Hour,
		AdminEmail:         getEnv("ADMIN_EMAIL", ""),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		PaymentProvider:    strings.ToLower(getEnv("PAYMENT_PROVIDER", "sandbox")),
		StripeSecretKey:    getEnv("STRIPE_SECRET_KEY", ""),
		Currency:           strings.ToLower(getEnv("CURRENCY", "usd")),
		AuctionSweepSpec:   getEnv("AUCTION_SWEEP_SPEC", "@every 30s"),
	}
	if getEnv("REDIS_DISABLED", "") == "true" {
		cfg.RedisAddr = ""
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.CartRateLimit, err = getEnvInt("CART_RATE_LIMIT", cfg.CartRateLimit); err != nil {
		return AppConfig{}, fmt.Errorf("invalid CART_RATE_LIMIT: %w", err)
	}
	if cfg.BidRateLimit, err = getEnvInt("BID_RATE_LIMIT", cfg.BidRateLimit); err != nil {
		return AppConfig{}, fmt.Errorf("invalid BID_RATE_LIMIT: %w", err)
	}
	if cfg.CartRateLimit <= 0 || cfg.BidRateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("CART_RATE_LIMIT and BID_RATE_LIMIT must be > 0")
	}

	rateWindowSec, err := getEnvInt("RATE_WINDOW_SEC", int(cfg.RateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("RATE_WINDOW_SEC must be > 0")
	}
	cfg.RateWindow = time.Duration(rateWindowSec) * time.Second

	stockTTLHour, err := getEnvInt("STOCK_CACHE_TTL_HOUR", int(cfg.StockCacheTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid STOCK_CACHE_TTL_HOUR: %w", err)
	}
	if stockTTLHour <= 0 {
		return AppConfig{}, fmt.Errorf("STOCK_CACHE_TTL_HOUR must be > 0")
	}
	cfg.StockCacheTTL = time.Duration(stockTTLHour) * time.Hour

	lockTTLSec, err := getEnvInt("CHECKOUT_LOCK_TTL_SEC", int(cfg.CheckoutLockTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CHECKOUT_LOCK_TTL_SEC: %w", err)
	}
	if lockTTLSec <= 0 {
		return AppConfig{}, fmt.Errorf("CHECKOUT_LOCK_TTL_SEC must be > 0")
	}
	cfg.CheckoutLockTTL = time.Duration(lockTTLSec) * time.Second

	jwtTTLHour, err := getEnvInt("JWT_TTL_HOUR", int(cfg.JWTTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid JWT_TTL_HOUR: %w", err)
	}
	if jwtTTLHour <= 0 {
		return AppConfig{}, fmt.Errorf("JWT_TTL_HOUR must be > 0")
	}
	cfg.JWTTTL = time.Duration(jwtTTLHour) * time.Hour

	if cfg.BidRequireActiveAuction, err = getEnvBool("BID_REQUIRE_ACTIVE_AUCTION", false); err != nil {
		return AppConfig{}, fmt.Errorf("invalid BID_REQUIRE_ACTIVE_AUCTION: %w", err)
	}

	if cfg.JWTSecret == "" {
		return AppConfig{}, fmt.Errorf("JWT_SECRET must not be empty")
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return AppConfig{}, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	switch cfg.PaymentProvider {
	case "sandbox":
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return AppConfig{}, fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return AppConfig{}, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}
	if len(cfg.KafkaBrokers) > 0 {
		if cfg.RedisAddr == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS requires Redis for the order event outbox")
		}
		if cfg.KafkaTopic == "" || cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC and KAFKA_GROUP_ID must not be empty")
		}
		if cfg.OrderEventStream == "" || cfg.OrderEventGroup == "" || cfg.OrderEventConsumer == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM, ORDER_EVENT_GROUP and ORDER_EVENT_CONSUMER must not be empty")
		}
	}
	if cfg.CartCookieName == "" {
		return AppConfig{}, fmt.Errorf("CART_COOKIE_NAME must not be empty")
	}
	for _, o := range cfg.CORSOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return AppConfig{}, fmt.Errorf("invalid CORS_ORIGINS entry %q", o)
		}
	}

	return cfg, nil
}

// KafkaEnabled 是否通过 outbox + Kafka 投递订单事件。
func (c AppConfig) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
