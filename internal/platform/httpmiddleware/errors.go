package httpmiddleware

import (
	"github.com/gin-gonic/gin"
)

// Machine-readable error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest   = "bad_request"
	CodeValidation   = "validation_failed"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)

// ErrorResponse 统一的错误响应体
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// AbortWithError 写 JSON 错误并终止后续 handler。
func AbortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: RequestID(c),
	})
}
