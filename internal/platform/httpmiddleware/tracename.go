package httpmiddleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// TraceName 把 otelhttp 创建的 span 重命名为 "METHOD /route/:param"。
func TraceName() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "UNMATCHED"
		}
		trace.SpanFromContext(c.Request.Context()).SetName(c.Request.Method + " " + route)
		c.Next()
	}
}
