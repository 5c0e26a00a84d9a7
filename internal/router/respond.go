package router

import (
	"net/http"
	"strconv"

	"dessert_market/internal/apperr"

	"github.com/gin-gonic/gin"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": msg})
}

// fail 按错误分类写出状态码；未分类错误记日志并只返回通用消息。
func fail(c *gin.Context, d *Deps, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	msg := err.Error()
	if kind == apperr.Internal {
		d.Log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"code": status, "msg": msg})
}

// pathID 解析 32 位十进制路径参数。
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
