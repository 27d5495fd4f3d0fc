package httpmiddleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

// print stack trace for debug
func stack(message string) string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:]) // skip runtime + defer frames

	var str strings.Builder
	str.WriteString(message + "\nTraceback:")
	for _, pc := range pcs[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line := fn.FileLine(pc)
		fmt.Fprintf(&str, "\n\t%s:%d", file, line)
	}
	return str.String()
}

// Recovery 捕获 panic，记日志并返回 500 JSON。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				message := fmt.Sprintf("%v", err)
				slog.Error("panic recovered",
					"request_id", RequestID(c),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"panic", message,
					"stack", stack(message),
				)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				AbortWithError(c, http.StatusInternalServerError, CodeInternal, "Internal Server Error")
			}
		}()
		c.Next()
	}
}
