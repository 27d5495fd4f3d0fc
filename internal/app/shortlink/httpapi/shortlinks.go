package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/platform/httpmiddleware"
	"snipr.local/internal/platform/trace"
)

type Resolver interface {
	Resolve(ctx context.Context, token string, visit shortlink.Visit) (shortlink.Resolution, error)
}

type Creator interface {
	Create(ctx context.Context, longURL, customAlias string) (shortlink.Created, error)
}

type Inspector interface {
	Record(ctx context.Context, token string) (shortlink.Record, error)
	Clicks(ctx context.Context, token string, limit int, cursor int64) ([]shortlink.Click, int64, error)
}

type resolveResponse struct {
	LongURL string `json:"longUrl"`
	Cached  bool   `json:"cached"`
}

// NewResolveHandler GET /api/url/:token
func NewResolveHandler(r Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		res, err := resolve(c, r, token)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resolveResponse{LongURL: res.LongURL, Cached: res.Cached})
	}
}

// NewRedirectHandler GET /:token
func NewRedirectHandler(r Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		res, err := resolve(c, r, token)
		if err != nil {
			writeError(c, err)
			return
		}
		// 不让浏览器缓存 302，否则后续点击统计不到
		c.Header("Cache-Control", "private, max-age=0")
		c.Redirect(http.StatusFound, res.LongURL)
	}
}

func resolve(c *gin.Context, r Resolver, token string) (shortlink.Resolution, error) {
	span := oteltrace.SpanFromContext(c.Request.Context())
	span.SetAttributes(attribute.String(trace.AttrToken, token))

	res, err := r.Resolve(c.Request.Context(), token, visitFrom(c))
	if err != nil {
		if errors.Is(err, shortlink.ErrDependency) {
			span.SetAttributes(attribute.String(trace.AttrStoreError, err.Error()))
		}
		return res, err
	}
	span.SetAttributes(attribute.Bool(trace.AttrCached, res.Cached))
	return res, nil
}

type createRequest struct {
	LongURL     string `json:"longUrl" form:"longUrl"`
	CustomAlias string `json:"customAlias" form:"customAlias"`
}

type createResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id"`
	ShortURL string `json:"shortUrl"`
	LongURL  string `json:"longUrl"`
	ShortID  string `json:"shortId"`
}

// NewCreateHandler POST /api/url，接受 JSON 或表单。
// 没写 scheme 的地址补成 https://。
func NewCreateHandler(cr Creator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBind(&req); err != nil {
			httpmiddleware.AbortWithError(c, http.StatusBadRequest, httpmiddleware.CodeBadRequest, "invalid request body")
			return
		}
		longURL := strings.TrimSpace(req.LongURL)
		if longURL == "" {
			httpmiddleware.AbortWithError(c, http.StatusBadRequest, httpmiddleware.CodeValidation, "longUrl is required")
			return
		}

		out, err := cr.Create(c.Request.Context(), shortlink.NormalizeURL(longURL), strings.TrimSpace(req.CustomAlias))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, createResponse{
			Success:  true,
			ID:       shortlink.EncodeID(out.Record.ID),
			ShortURL: out.ShortURL,
			LongURL:  out.LongURL,
			ShortID:  out.ShortID,
		})
	}
}

type statsResponse struct {
	ID          string    `json:"id"`
	ShortID     string    `json:"shortId"`
	CustomAlias string    `json:"customAlias,omitempty"`
	LongURL     string    `json:"longUrl"`
	ClickCount  int64     `json:"clickCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewStatsHandler GET /api/url/:token/stats，只读，不计点击。
func NewStatsHandler(in Inspector) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := in.Record(c.Request.Context(), c.Param("token"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, statsResponse{
			ID:          shortlink.EncodeID(rec.ID),
			ShortID:     rec.ShortID,
			CustomAlias: rec.CustomAlias,
			LongURL:     rec.LongURL,
			ClickCount:  rec.ClickCount,
			CreatedAt:   rec.CreatedAt,
		})
	}
}
