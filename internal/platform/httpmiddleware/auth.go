package httpmiddleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"snipr.local/internal/platform/auth"
)

// parseBearer 解析 Authorization header 中的 Bearer token
// 返回 token 字符串，如果格式不正确返回空字符串
func parseBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// AuthRequired 要求请求必须携带有效的 JWT token
func AuthRequired(ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			AbortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
			return
		}
		token := parseBearer(header)
		if token == "" {
			AbortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization format")
			return
		}
		id, err := ts.Verify(token)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "invalid token")
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireRole 要求用户具有指定角色，必须挂在 AuthRequired 之后
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.GetIdentity(c.Request.Context())
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			return
		}
		if id.Role != role {
			AbortWithError(c, http.StatusForbidden, CodeForbidden, "forbidden")
			return
		}
		c.Next()
	}
}
