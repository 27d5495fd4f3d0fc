package httpmiddleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// ReqID 复用上游传入的 X-Request-ID，没有就生成一个 UUID；同时回写到响应头。
func ReqID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestID 当前请求的 ID，ReqID 没挂时为空。
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
