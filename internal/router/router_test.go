package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"dessert_market/internal/auth"
	"dessert_market/internal/bidding"
	"dessert_market/internal/cart"
	"dessert_market/internal/checkout"
	"dessert_market/internal/middleware"
	"dessert_market/internal/model"
	"dessert_market/internal/payment"
	"dessert_market/internal/queue"
	"dessert_market/internal/store"
	rediskey "dessert_market/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

type nopNotifier struct{}

func (nopNotifier) NotifyBid(context.Context, bidding.UpdateBid) error { return nil }

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testEnv struct {
	r     *gin.Engine
	db    *gorm.DB
	mr    *miniredis.Miniredis
	admin string
	user  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(log)

	stock := rediskey.NewStockCache(rdb, time.Hour)
	carts := cart.NewService(db, stock, entry)
	authSvc := auth.NewService(db, auth.NewTokens("router-secret", time.Hour), entry)
	deps := &Deps{
		DB:    db,
		Carts: carts,
		Bids:  bidding.NewService(db, nopNotifier{}, entry),
		Checkout: checkout.NewService(db, carts, payment.NewSandbox(), rediskey.NewCartLocker(rdb, time.Minute),
			queue.NewConfirmer(db, entry), checkout.Config{Currency: "usd", BaseURL: "http://shop.test"}, entry),
		Auth:       authSvc,
		Stock:      stock,
		CartLimit:  middleware.NewRateLimiter(rdb, "cart", 1000, time.Minute, "cart_id", entry),
		BidLimit:   middleware.NewRateLimiter(rdb, "bid", 1000, time.Minute, "cart_id", entry),
		CartCookie: "cart_id",
		Log:        entry,
	}
	r := gin.New()
	Setup(r, deps)

	ctx := context.Background()
	require.NoError(t, authSvc.SeedAdmin(ctx, "admin@shop.test", "admin-pass-1"))
	admin, _, err := authSvc.Login(ctx, "admin@shop.test", "admin-pass-1")
	require.NoError(t, err)
	_, err = authSvc.Register(ctx, "bidder@shop.test", "bidder-pass-1")
	require.NoError(t, err)
	user, _, err := authSvc.Login(ctx, "bidder@shop.test", "bidder-pass-1")
	require.NoError(t, err)

	return &testEnv{r: r, db: db, mr: mr, admin: admin, user: user}
}

type call struct {
	token  string
	cookie *http.Cookie
}

func (e *testEnv) do(t *testing.T, method, target string, body any, cl call) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}
	if cl.cookie != nil {
		req.AddCookie(cl.cookie)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (e *testEnv) dessert(t *testing.T, name, price string, qty int) model.Dessert {
	t.Helper()
	d := model.Dessert{Name: name, Description: name, Price: decimal.RequireFromString(price), Quantity: qty, IsAvailable: true}
	require.NoError(t, e.db.Create(&d).Error)
	return d
}

func (e *testEnv) available(t *testing.T, id uint) int {
	t.Helper()
	var d model.Dessert
	require.NoError(t, e.db.First(&d, id).Error)
	return d.Quantity
}

func cartCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "cart_id" {
			return ck
		}
	}
	t.Fatal("cart cookie not set")
	return nil
}

func TestPing(t *testing.T) {
	e := newTestEnv(t)
	w, _ := e.do(t, http.MethodGet, "/ping", nil, call{})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(t, http.MethodGet, "/metrics", nil, call{})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCartFlow(t *testing.T) {
	e := newTestEnv(t)
	yule := e.dessert(t, "Yule Log", "15.99", 10)

	w, env := e.do(t, http.MethodPost, "/cart/add", gin.H{"dessertId": yule.ID, "quantity": 4}, call{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ck := cartCookie(t, w)
	var item model.CartItem
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, 4, item.Quantity)
	assert.Equal(t, 6, e.available(t, yule.ID))

	// 超量
	w, env = e.do(t, http.MethodPost, "/cart/add", gin.H{"dessertId": yule.ID, "quantity": 7}, call{cookie: ck})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Only 6 items available", env.Msg)
	assert.Equal(t, 6, e.available(t, yule.ID))

	w, _ = e.do(t, http.MethodPost, "/cart/add", gin.H{"dessertId": 999, "quantity": 1}, call{cookie: ck})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/desserts/"+itoa(yule.ID)+"/stock", nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	var stock struct {
		Stock  int    `json:"stock"`
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stock))
	assert.Equal(t, 6, stock.Stock)
	assert.Equal(t, "db", stock.Source)

	// 回填后命中缓存
	w, env = e.do(t, http.MethodGet, "/api/desserts/"+itoa(yule.ID)+"/stock", nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &stock))
	assert.Equal(t, 6, stock.Stock)
	assert.Equal(t, "cache", stock.Source)

	w, env = e.do(t, http.MethodGet, "/cart", nil, call{cookie: ck})
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		Items []model.CartItem `json:"items"`
		Total string           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Items, 1)
	assert.Equal(t, "63.96", view.Total)

	w, _ = e.do(t, http.MethodPost, "/cart/update", gin.H{"cartItemId": item.ID, "quantity": 2}, call{cookie: ck})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8, e.available(t, yule.ID))
	// 变更后缓存失效，下次读回源
	assert.False(t, e.mr.Exists(rediskey.StockKey(yule.ID)))

	// 别的购物车不能动这一行
	other := &http.Cookie{Name: "cart_id", Value: "someone-else"}
	w, _ = e.do(t, http.MethodPost, "/cart/update", gin.H{"cartItemId": item.ID, "quantity": 1}, call{cookie: other})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, env = e.do(t, http.MethodPost, "/cart/remove", gin.H{"cartItemId": item.ID}, call{cookie: other})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"removed":false`)
	assert.Equal(t, 8, e.available(t, yule.ID))

	w, _ = e.do(t, http.MethodPost, "/cart/remove", gin.H{"cartItemId": item.ID}, call{cookie: ck})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, e.available(t, yule.ID))

	w, _ = e.do(t, http.MethodPost, "/cart/remove", gin.H{"cartItemId": item.ID}, call{cookie: ck})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCartClear(t *testing.T) {
	e := newTestEnv(t)
	a := e.dessert(t, "Panettone", "12.00", 5)
	b := e.dessert(t, "Stollen", "9.50", 5)

	w, _ := e.do(t, http.MethodPost, "/cart/add", gin.H{"dessertId": a.ID, "quantity": 2}, call{})
	ck := cartCookie(t, w)
	w, _ = e.do(t, http.MethodPost, "/cart/add", gin.H{"dessertId": b.ID, "quantity": 3}, call{cookie: ck})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(t, http.MethodPost, "/cart/clear", nil, call{cookie: ck})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, e.available(t, a.ID))
	assert.Equal(t, 5, e.available(t, b.ID))
}

func TestCheckoutFlow(t *testing.T) {
	e := newTestEnv(t)
	pie := e.dessert(t, "Pecan Pie", "25.99", 3)

	w, env := e.do(t, http.MethodPost, "/checkout", nil, call{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "your cart is empty", env.Msg)

	w, _ = e.do(t, http.MethodPost, "/cart/add", gin.H{"dessertId": pie.ID, "quantity": 2}, call{})
	ck := cartCookie(t, w)

	w, env = e.do(t, http.MethodPost, "/checkout", nil, call{cookie: ck})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var started struct {
		SessionID string `json:"session_id"`
		URL       string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))
	u, err := url.Parse(started.URL)
	require.NoError(t, err)
	assert.Equal(t, "/checkout/success", u.Path)
	assert.Equal(t, started.SessionID, u.Query().Get("session_id"))

	w, env = e.do(t, http.MethodGet, u.RequestURI(), nil, call{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var order model.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	require.Len(t, order.Lines, 1)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("51.98")))

	// 预占被消耗，不回补
	assert.Equal(t, 1, e.available(t, pie.ID))
	var n int64
	require.NoError(t, e.db.Model(&model.CartItem{}).Count(&n).Error)
	assert.Zero(t, n)

	var stored model.Order
	require.NoError(t, e.db.Where("order_no = ?", order.OrderNo).First(&stored).Error)
	assert.Equal(t, model.OrderConfirmed, stored.Status)

	// 重复回跳返回同一订单
	w, env = e.do(t, http.MethodGet, u.RequestURI(), nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	var again model.Order
	require.NoError(t, json.Unmarshal(env.Data, &again))
	assert.Equal(t, order.OrderNo, again.OrderNo)

	w, _ = e.do(t, http.MethodGet, "/checkout/cancel?session_id="+started.SessionID, nil, call{})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = e.do(t, http.MethodGet, "/checkout/success?session_id=nope", nil, call{})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = e.do(t, http.MethodGet, "/checkout/success", nil, call{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutCancelKeepsCart(t *testing.T) {
	e := newTestEnv(t)
	tart := e.dessert(t, "Tarte Tatin", "18.00", 4)

	w, _ := e.do(t, http.MethodPost, "/cart/add", gin.H{"dessertId": tart.ID, "quantity": 1}, call{})
	ck := cartCookie(t, w)
	_, env := e.do(t, http.MethodPost, "/checkout", nil, call{cookie: ck})
	var started struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))

	w, env = e.do(t, http.MethodGet, "/checkout/cancel?session_id="+started.SessionID, nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"cancelled"`)
	assert.Equal(t, 3, e.available(t, tart.ID))

	w, _ = e.do(t, http.MethodGet, "/checkout/success?session_id="+started.SessionID, nil, call{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBadRequestMessages(t *testing.T) {
	e := newTestEnv(t)

	w, env := e.do(t, http.MethodGet, "/checkout/success", nil, call{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "session_id is required", env.Msg)

	w, env = e.do(t, http.MethodGet, "/api/desserts/abc", nil, call{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid id", env.Msg)

	body := gin.H{"name": "Gala", "start_time": "tonight", "end_time": "2026-12-01T20:00:00Z"}
	w, env = e.do(t, http.MethodPost, "/api/auctions", body, call{token: e.admin})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "start_time must be an RFC3339 timestamp", env.Msg)
}

func TestDessertAdmin(t *testing.T) {
	e := newTestEnv(t)
	body := gin.H{"name": "Bûche", "description": "log cake", "price": "21.50", "quantity": 4, "is_available": true}

	w, _ := e.do(t, http.MethodPost, "/api/desserts", body, call{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = e.do(t, http.MethodPost, "/api/desserts", body, call{token: e.user})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := e.do(t, http.MethodPost, "/api/desserts", body, call{token: e.admin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var d model.Dessert
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.True(t, d.Price.Equal(decimal.RequireFromString("21.50")))

	bad := gin.H{"name": "Free", "description": "x", "price": "0"}
	w, _ = e.do(t, http.MethodPost, "/api/desserts", bad, call{token: e.admin})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body["quantity"] = 9
	body["is_available"] = false
	w, _ = e.do(t, http.MethodPut, "/api/desserts/"+itoa(d.ID), body, call{token: e.admin})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 9, e.available(t, d.ID))

	w, env = e.do(t, http.MethodGet, "/api/desserts", nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(env.Data), "Bûche")
	w, env = e.do(t, http.MethodGet, "/api/desserts?all=true", nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "Bûche")

	w, _ = e.do(t, http.MethodDelete, "/api/desserts/"+itoa(d.ID), nil, call{token: e.admin})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/desserts/"+itoa(d.ID), nil, call{})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/desserts/abc", nil, call{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBidOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	w, env := e.do(t, http.MethodPost, "/api/listings", gin.H{"name": "Croquembouche", "starting_bid": "20.00"}, call{token: e.admin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var l model.Listing
	require.NoError(t, json.Unmarshal(env.Data, &l))
	target := "/api/listings/" + itoa(l.ID) + "/bids"

	w, _ = e.do(t, http.MethodPost, target, gin.H{"amount": "25.00"}, call{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = e.do(t, http.MethodPost, target, gin.H{"amount": "25.00"}, call{token: e.user})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var u bidding.UpdateBid
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, l.ID, u.ListingID)
	assert.NotEmpty(t, u.UserID)

	w, env = e.do(t, http.MethodPost, target, gin.H{"amount": "25.00"}, call{token: e.admin})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, bidding.ErrBidTooLow.Error(), env.Msg)

	w, env = e.do(t, http.MethodGet, target, nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	var bids []model.Bid
	require.NoError(t, json.Unmarshal(env.Data, &bids))
	require.Len(t, bids, 1)
	assert.Equal(t, u.UserID, bids[0].UserID)

	w, _ = e.do(t, http.MethodPost, "/api/listings/999/bids", gin.H{"amount": "5"}, call{token: e.user})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(t, http.MethodDelete, "/api/listings/"+itoa(l.ID), nil, call{token: e.admin})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/listings/"+itoa(l.ID), nil, call{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuctionRoutes(t *testing.T) {
	e := newTestEnv(t)
	_, env := e.do(t, http.MethodPost, "/api/listings", gin.H{"name": "Pavlova", "starting_bid": "30"}, call{token: e.admin})
	var l model.Listing
	require.NoError(t, json.Unmarshal(env.Data, &l))

	w, _ := e.do(t, http.MethodGet, "/api/auctions/active", nil, call{})
	assert.Equal(t, http.StatusNotFound, w.Code)

	now := time.Now().UTC()
	body := gin.H{
		"name":       "Winter Gala",
		"start_time": now.Add(-time.Hour).Format(time.RFC3339),
		"end_time":   now.Add(time.Hour).Format(time.RFC3339),
	}
	w, _ = e.do(t, http.MethodPost, "/api/auctions", body, call{token: e.user})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, env = e.do(t, http.MethodPost, "/api/auctions", body, call{token: e.admin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var a model.Auction
	require.NoError(t, json.Unmarshal(env.Data, &a))

	w, _ = e.do(t, http.MethodPost, "/api/auctions", body, call{token: e.admin})
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = e.do(t, http.MethodPost, "/api/auctions", gin.H{"name": "x", "start_time": "tomorrow", "end_time": "later"}, call{token: e.admin})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodGet, "/api/auctions/active", nil, call{})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/listings/"+itoa(l.ID)+"/bids", gin.H{"amount": "35"}, call{token: e.user})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/auctions/"+itoa(a.ID)+"/summary", nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	var sums []bidding.BidSummary
	require.NoError(t, json.Unmarshal(env.Data, &sums))
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].TotalBids)

	w, _ = e.do(t, http.MethodPost, "/api/auctions/"+itoa(a.ID)+"/end", nil, call{token: e.admin})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/listings/"+itoa(l.ID), nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	var closed model.Listing
	require.NoError(t, json.Unmarshal(env.Data, &closed))
	assert.True(t, closed.Closed)
	assert.True(t, closed.WinningBid.Equal(decimal.NewFromInt(35)))

	w, env = e.do(t, http.MethodGet, "/api/auctions", nil, call{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "Winter Gala")
}

func TestAuthRoutes(t *testing.T) {
	e := newTestEnv(t)
	w, env := e.do(t, http.MethodPost, "/api/auth/register", gin.H{"email": "new@shop.test", "password": "long-enough"}, call{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"role":"User"`)

	w, _ = e.do(t, http.MethodPost, "/api/auth/register", gin.H{"email": "new@shop.test", "password": "long-enough"}, call{})
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = e.do(t, http.MethodPost, "/api/auth/register", gin.H{"email": "short@shop.test", "password": "123"}, call{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "new@shop.test", "password": "wrong-password"}, call{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = e.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "new@shop.test"}, call{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
