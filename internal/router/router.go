package router

import (
	"net/http"

	"dessert_market/internal/auth"
	"dessert_market/internal/bidding"
	"dessert_market/internal/cart"
	"dessert_market/internal/checkout"
	"dessert_market/internal/metrics"
	"dessert_market/internal/middleware"
	"dessert_market/internal/model"
	"dessert_market/internal/realtime"
	rediskey "dessert_market/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps 是 HTTP 层需要的全部依赖，由 cmd/server 组装。
type Deps struct {
	DB       *gorm.DB
	Carts    *cart.Service
	Bids     *bidding.Service
	Checkout *checkout.Service
	Auth     *auth.Service
	// Stock 为 nil 时库存查询直接读库
	Stock *rediskey.StockCache
	WS    *realtime.Handler

	// 限流器为 nil 时不限流
	CartLimit *middleware.RateLimiter
	BidLimit  *middleware.RateLimiter

	CartCookie string
	// SecureCookie 仅在 https 部署时打开
	SecureCookie bool
	Log          *logrus.Entry
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d *Deps) {
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if d.CartCookie == "" {
		d.CartCookie = "cart_id"
	}
	tokens := d.Auth.Tokens()
	admin := middleware.RequireAuth(tokens, model.RoleAdmin)
	user := middleware.RequireAuth(tokens)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Auth
	r.POST("/api/auth/register", register(d))
	r.POST("/api/auth/login", login(d))

	// Desserts
	r.GET("/api/desserts", listDesserts(d))
	r.GET("/api/desserts/:id", getDessert(d))
	r.GET("/api/desserts/:id/stock", getStock(d))
	r.POST("/api/desserts", admin, createDessert(d))
	r.PUT("/api/desserts/:id", admin, updateDessert(d))
	r.DELETE("/api/desserts/:id", admin, deleteDessert(d))

	// Cart
	carts := r.Group("/cart", limit(d.CartLimit))
	carts.GET("", getCart(d))
	carts.POST("/add", addToCart(d))
	carts.POST("/update", updateCartItem(d))
	carts.POST("/remove", removeCartItem(d))
	carts.POST("/clear", clearCart(d))

	// Checkout
	r.POST("/checkout", limit(d.CartLimit), startCheckout(d))
	r.GET("/checkout/success", checkoutSuccess(d))
	r.GET("/checkout/cancel", checkoutCancel(d))

	// Listings
	r.GET("/api/listings", listListings(d))
	r.GET("/api/listings/:id", getListing(d))
	r.GET("/api/listings/:id/bids", listBids(d))
	r.POST("/api/listings", admin, createListing(d))
	r.DELETE("/api/listings/:id", admin, deleteListing(d))
	r.POST("/api/listings/:id/bids", user, limit(d.BidLimit), placeBid(d))

	// Auctions
	r.GET("/api/auctions", listAuctions(d))
	r.GET("/api/auctions/active", activeAuction(d))
	r.GET("/api/auctions/:id/summary", auctionSummary(d))
	r.POST("/api/auctions", admin, createAuction(d))
	r.POST("/api/auctions/:id/end", admin, endAuction(d))

	if d.WS != nil {
		r.GET("/ws/auction", user, limit(d.BidLimit), d.WS.Serve)
	}
}

func limit(rl *middleware.RateLimiter) gin.HandlerFunc {
	if rl == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return rl.Handler()
}
