package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"dessert_market/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Observe 记录访问日志与 HTTP 指标。
func Observe(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.InFlightInc()
		defer metrics.InFlightDec()

		c.Next()

		status := c.Writer.Status()
		d := time.Since(start)
		route := c.FullPath()
		metrics.ObserveHTTP(c.Request.Method, route, status, d)

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"route":   route,
			"status":  status,
			"latency": d.String(),
			"ip":      c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Debug("request")
		}
	}
}

// Recovery 捕获 panic，记录堆栈并返回 500 JSON。
func Recovery(log *logrus.Entry) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.WithFields(logrus.Fields{
			"panic":  recovered,
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"stack":  string(debug.Stack()),
		}).Error("unhandled panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal server error"})
	})
}
