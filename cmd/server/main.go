package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"dessert_market/internal/auth"
	"dessert_market/internal/bidding"
	"dessert_market/internal/cart"
	"dessert_market/internal/checkout"
	"dessert_market/internal/config"
	"dessert_market/internal/middleware"
	"dessert_market/internal/payment"
	"dessert_market/internal/queue"
	"dessert_market/internal/realtime"
	"dessert_market/internal/router"
	"dessert_market/internal/store"
	rediskey "dessert_market/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 连接 SQLite，自动建表，可选导入种子目录
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("db open")
	}
	if cfg.SeedFile != "" {
		cat, err := store.LoadCatalog(cfg.SeedFile)
		if err != nil {
			log.WithError(err).Fatal("load seed catalog")
		}
		if err := store.Seed(ctx, db, cat); err != nil {
			log.WithError(err).Fatal("seed")
		}
	}

	// 2. Redis 可选：没有时使用本地锁、进程内限流与单实例广播
	var (
		rdb    *rd.Client
		stock  *rediskey.StockCache
		mirror cart.StockMirror
		locker checkout.Locker = checkout.NewLocalLocker()
	)
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("redis ping")
		}
		stock = rediskey.NewStockCache(rdb, cfg.StockCacheTTL)
		mirror = stock
		locker = rediskey.NewCartLocker(rdb, cfg.CheckoutLockTTL)
	}

	// 3. 拍卖广播：hub 负责本实例连接，Redis 频道负责跨实例扇出
	hub := realtime.NewHub(log)
	go hub.Run(ctx)
	var notifier bidding.Notifier = hub
	if rdb != nil {
		fanout := realtime.NewRedisFanout(rdb, hub, log)
		if err := fanout.Start(ctx); err != nil {
			log.WithError(err).Fatal("subscribe bid channel")
		}
		notifier = fanout
	}
	bids := bidding.NewService(db, notifier, log, bidding.WithActiveAuctionRule(cfg.BidRequireActiveAuction))

	sweeper, err := bidding.NewSweeper(bids, cfg.AuctionSweepSpec, log)
	if err != nil {
		log.WithError(err).Fatal("auction sweeper")
	}
	sweeper.Start()

	// 4. 订单事件：配置 Kafka 时走 outbox → relay → Kafka → consumer，否则进程内直接确认
	var wg sync.WaitGroup
	confirmer := queue.NewConfirmer(db, log)
	var events checkout.EventSink = confirmer
	if cfg.KafkaEnabled() {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, confirmer, log)
		defer consumer.Close()
		relay := queue.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer, log)
		events = queue.NewOutbox(rdb, cfg.OrderEventStream)

		wg.Add(2)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}

	provider, err := payment.New(cfg.PaymentProvider, cfg.StripeSecretKey)
	if err != nil {
		log.WithError(err).Fatal("payment provider")
	}
	carts := cart.NewService(db, mirror, log)
	checkouts := checkout.NewService(db, carts, provider, locker, events,
		checkout.Config{Currency: cfg.Currency, BaseURL: cfg.PublicBaseURL}, log)

	authSvc := auth.NewService(db, auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL), log)
	if err := authSvc.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.WithError(err).Fatal("seed admin")
	}

	cartLimit := middleware.NewRateLimiter(rdb, "cart", cfg.CartRateLimit, cfg.RateWindow, cfg.CartCookieName, log)
	bidLimit := middleware.NewRateLimiter(rdb, "bid", cfg.BidRateLimit, cfg.RateWindow, cfg.CartCookieName, log)
	housekeeping := cron.New()
	if _, err := housekeeping.AddFunc("@every 10m", func() {
		cartLimit.Cleanup()
		bidLimit.Cleanup()
	}); err != nil {
		log.WithError(err).Fatal("housekeeping schedule")
	}
	housekeeping.Start()

	// 5. HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Observe(log))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}
	router.Setup(r, &router.Deps{
		DB:           db,
		Carts:        carts,
		Bids:         bids,
		Checkout:     checkouts,
		Auth:         authSvc,
		Stock:        stock,
		WS:           realtime.NewHandler(hub, bids, log),
		CartLimit:    cartLimit,
		BidLimit:     bidLimit,
		CartCookie:   cfg.CartCookieName,
		SecureCookie: strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		Log:          log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	sweeper.Stop(shutdownCtx)
	<-housekeeping.Stop().Done()
	wg.Wait()
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	l.SetOutput(os.Stdout)
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	l.SetLevel(lv)
	return logrus.NewEntry(l).WithField("service", "dessert_market")
}
