package httpmiddleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"snipr.local/internal/platform/metrics"
)

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()       //正在处理的请求数+1
		defer metrics.HTTPInflightRequests.Dec() //请求处理结束

		c.Next()

		// 路由模板，避免把真实 token 当 label
		route := c.FullPath()
		if route == "" {
			route = "UNMATCHED"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
