package router

import (
	"dessert_market/internal/middleware"
	"dessert_market/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func listListings(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ls, err := d.Bids.ListListings(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, ls)
	}
}

func getListing(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, "id")
		if !valid {
			return
		}
		l, err := d.Bids.GetListing(c.Request.Context(), id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, l)
	}
}

// listBids 出价记录，最新在前。
func listBids(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, "id")
		if !valid {
			return
		}
		ctx := c.Request.Context()
		if _, err := d.Bids.GetListing(ctx, id); err != nil {
			fail(c, d, err)
			return
		}
		bids, err := d.Bids.Bids(ctx, id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, bids)
	}
}

func createListing(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name        string          `json:"name" binding:"required,max=100"`
			Description string          `json:"description"`
			ImagePath   string          `json:"image_path" binding:"max=255"`
			StartingBid decimal.Decimal `json:"starting_bid"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		l := &model.Listing{
			Name:        req.Name,
			Description: req.Description,
			ImagePath:   req.ImagePath,
			StartingBid: req.StartingBid,
		}
		if err := d.Bids.CreateListing(c.Request.Context(), l); err != nil {
			fail(c, d, err)
			return
		}
		ok(c, l)
	}
}

func deleteListing(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, "id")
		if !valid {
			return
		}
		if err := d.Bids.DeleteListing(c.Request.Context(), id); err != nil {
			fail(c, d, err)
			return
		}
		ok(c, gin.H{"id": id})
	}
}

// placeBid HTTP 出价入口，规则与 WebSocket 相同；出价人取自令牌。
func placeBid(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, "id")
		if !valid {
			return
		}
		var req struct {
			Amount decimal.Decimal `json:"amount"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		claims, _ := middleware.Claims(c)
		u, err := d.Bids.Submit(c.Request.Context(), id, req.Amount, claims.UserID)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, u)
	}
}
