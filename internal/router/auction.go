package router

import (
	"time"

	"github.com/gin-gonic/gin"
)

func listAuctions(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		as, err := d.Bids.ListAuctions(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, as)
	}
}

func activeAuction(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := d.Bids.GetActiveAuction(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, a)
	}
}

// auctionSummary 每个拍品的最高价、最高出价人、出价次数与最后出价时间。
func auctionSummary(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, "id")
		if !valid {
			return
		}
		sums, err := d.Bids.BidSummaries(c.Request.Context(), id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, sums)
	}
}

// createAuction 创建场次（时间窗校验，不允许与已有场次重叠）。
func createAuction(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name      string `json:"name" binding:"required"`
			StartTime string `json:"start_time" binding:"required"`
			EndTime   string `json:"end_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		start, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			badRequest(c, "start_time must be an RFC3339 timestamp")
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			badRequest(c, "end_time must be an RFC3339 timestamp")
			return
		}
		a, err := d.Bids.CreateAuction(c.Request.Context(), req.Name, start, end)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, a)
	}
}

// endAuction 提前结束：结束时间改为当前，固化赢家并关闭全部拍品。
func endAuction(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, "id")
		if !valid {
			return
		}
		a, err := d.Bids.EndAuction(c.Request.Context(), id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, a)
	}
}
