package router

import (
	"github.com/gin-gonic/gin"
)

// startCheckout 为当前购物车创建支付会话，前端按 url 跳转。
func startCheckout(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cs, err := d.Checkout.Start(c.Request.Context(), cartID(c, d, false))
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, gin.H{"session_id": cs.ID, "url": cs.URL})
	}
}

// checkoutSuccess 支付成功回跳：支付方确认收款后消耗购物车并返回订单，重复访问返回同一订单。
func checkoutSuccess(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			badRequest(c, "session_id is required")
			return
		}
		o, err := d.Checkout.Complete(c.Request.Context(), sessionID)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, o)
	}
}

// checkoutCancel 用户放弃支付，购物车保留。
func checkoutCancel(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			badRequest(c, "session_id is required")
			return
		}
		cs, err := d.Checkout.Cancel(c.Request.Context(), sessionID)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, gin.H{"session_id": cs.ID, "status": cs.Status.String()})
	}
}
