package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/platform/httpmiddleware"
)

// writeError 把领域错误映射成 HTTP 状态码和统一的错误体。
// 依赖故障只打日志，不把内部错误信息返回给调用方。
func writeError(c *gin.Context, err error) {
	var ve *shortlink.ValidationError
	switch {
	case errors.As(err, &ve):
		httpmiddleware.AbortWithError(c, http.StatusBadRequest, httpmiddleware.CodeValidation, ve.Error())
	case errors.Is(err, shortlink.ErrValidation):
		httpmiddleware.AbortWithError(c, http.StatusBadRequest, httpmiddleware.CodeValidation, err.Error())
	case errors.Is(err, shortlink.ErrNotFound):
		httpmiddleware.AbortWithError(c, http.StatusNotFound, httpmiddleware.CodeNotFound, "url not found")
	case errors.Is(err, shortlink.ErrConflict):
		httpmiddleware.AbortWithError(c, http.StatusConflict, httpmiddleware.CodeConflict, err.Error())
	default:
		slog.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(),
			"request_id", httpmiddleware.RequestID(c),
			"err", err,
		)
		httpmiddleware.AbortWithError(c, http.StatusInternalServerError, httpmiddleware.CodeInternal, "internal server error")
	}
}

// visitFrom 收集点击统计需要的请求信息。
func visitFrom(c *gin.Context) shortlink.Visit {
	return shortlink.Visit{
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
		Referer:   c.Request.Referer(),
	}
}
