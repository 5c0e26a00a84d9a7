package router

import (
	"net/http"

	"dessert_market/internal/cart"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const cartCookieMaxAge = 30 * 24 * 3600

// cartID 读取购物车 cookie；create 为 true 且不存在时签发新的随机购物车号。
func cartID(c *gin.Context, d *Deps, create bool) string {
	if v, err := c.Cookie(d.CartCookie); err == nil && v != "" {
		return v
	}
	if !create {
		return ""
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(d.CartCookie, id, cartCookieMaxAge, "/", "", d.SecureCookie, true)
	return id
}

func getCart(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := cartID(c, d, false)
		items, err := d.Carts.GetCartItems(c.Request.Context(), id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, gin.H{
			"cart_id": id,
			"items":   items,
			"total":   cart.Total(items).StringFixed(2),
		})
	}
}

// addToCart 预占库存；超出可售数量时返回 "Only N items available"。
func addToCart(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DessertID uint `json:"dessertId" binding:"required,min=1"`
			Quantity  int  `json:"quantity" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		item, err := d.Carts.AddToCart(c.Request.Context(), req.DessertID, cartID(c, d, true), req.Quantity)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, item)
	}
}

// updateCartItem 把行数量改为 quantity；quantity ≤ 0 等同删除。
func updateCartItem(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			CartItemID uint `json:"cartItemId" binding:"required,min=1"`
			Quantity   int  `json:"quantity"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ctx := c.Request.Context()
		owned, err := d.Carts.ItemInCart(ctx, cartID(c, d, false), req.CartItemID)
		if err != nil {
			fail(c, d, err)
			return
		}
		if !owned {
			fail(c, d, cart.ErrCartItemNotFound)
			return
		}
		if err := d.Carts.UpdateQuantity(ctx, req.CartItemID, req.Quantity); err != nil {
			fail(c, d, err)
			return
		}
		ok(c, gin.H{"cart_item_id": req.CartItemID, "quantity": max(req.Quantity, 0)})
	}
}

// removeCartItem 行不存在（或不属于当前购物车）时什么也不做。
func removeCartItem(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			CartItemID uint `json:"cartItemId" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ctx := c.Request.Context()
		owned, err := d.Carts.ItemInCart(ctx, cartID(c, d, false), req.CartItemID)
		if err != nil {
			fail(c, d, err)
			return
		}
		if owned {
			if err := d.Carts.RemoveFromCart(ctx, req.CartItemID); err != nil {
				fail(c, d, err)
				return
			}
		}
		ok(c, gin.H{"cart_item_id": req.CartItemID, "removed": owned})
	}
}

func clearCart(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := cartID(c, d, false)
		if id == "" {
			ok(c, gin.H{"cleared": false})
			return
		}
		if err := d.Carts.ClearCart(c.Request.Context(), id); err != nil {
			fail(c, d, err)
			return
		}
		ok(c, gin.H{"cleared": true})
	}
}
