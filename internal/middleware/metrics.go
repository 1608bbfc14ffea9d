package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smart-notebook-go/pkg/metrics"
)

// Metrics 按路由模板统计请求数与耗时。未匹配路由的请求记为 "unmatched"，避免路径基数爆炸。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
