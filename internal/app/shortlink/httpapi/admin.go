package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/platform/auth"
	"snipr.local/internal/platform/httpmiddleware"
)

// Authenticator 由 auth.AdminAuthenticator 实现。
type Authenticator interface {
	Authenticate(username, password string) (auth.Identity, error)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// NewLoginHandler POST /api/admin/login
func NewLoginHandler(a Authenticator, ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpmiddleware.AbortWithError(c, http.StatusBadRequest, httpmiddleware.CodeBadRequest, "invalid request body")
			return
		}
		id, err := a.Authenticate(req.Username, req.Password)
		if err != nil {
			// 用户名和密码错误不区分提示
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				writeError(c, err)
				return
			}
			httpmiddleware.AbortWithError(c, http.StatusUnauthorized, httpmiddleware.CodeUnauthorized, "invalid username or password")
			return
		}
		token, err := ts.Sign(id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, loginResponse{Token: token})
	}
}

type clicksResponse struct {
	Clicks     []shortlink.Click `json:"clicks"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// NewClicksHandler GET /api/admin/url/:token/clicks?limit=&cursor=
// cursor 是上一页最后一条点击的 id，翻到底时 nextCursor 为空。
func NewClicksHandler(in Inspector) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, cursor, ok := parsePage(c)
		if !ok {
			return
		}
		clicks, next, err := in.Clicks(c.Request.Context(), c.Param("token"), limit, cursor)
		if err != nil {
			writeError(c, err)
			return
		}
		if clicks == nil {
			clicks = []shortlink.Click{}
		}
		resp := clicksResponse{Clicks: clicks}
		if next > 0 {
			resp.NextCursor = strconv.FormatInt(next, 10)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func parsePage(c *gin.Context) (limit int, cursor int64, ok bool) {
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpmiddleware.AbortWithError(c, http.StatusBadRequest, httpmiddleware.CodeBadRequest, "invalid limit")
			return 0, 0, false
		}
		limit = n
	}
	if raw := c.Query("cursor"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			httpmiddleware.AbortWithError(c, http.StatusBadRequest, httpmiddleware.CodeBadRequest, "invalid cursor")
			return 0, 0, false
		}
		cursor = n
	}
	return limit, cursor, true
}
