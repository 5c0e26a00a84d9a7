package router

import (
	"dessert_market/internal/auth"

	"github.com/gin-gonic/gin"
)

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// register 注册普通用户并直接签发令牌。
func register(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if _, err := d.Auth.Register(c.Request.Context(), req.Email, req.Password); err != nil {
			fail(c, d, err)
			return
		}
		issueToken(c, d, req)
	}
}

func login(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		issueToken(c, d, req)
	}
}

func issueToken(c *gin.Context, d *Deps, req credentials) {
	token, u, err := d.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, d, err)
		return
	}
	ok(c, gin.H{
		"token":   token,
		"user_id": auth.UserID(u.ID),
		"email":   u.Email,
		"role":    u.Role,
	})
}
