package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"snipr.local/internal/platform/auth"
	"snipr.local/internal/platform/httpmiddleware"
	"snipr.local/internal/platform/ratelimit"
)

// 每条路由单独计数，key 为 rl:<route>:<ip>。
var (
	resolveRule  = ratelimit.Rule{Route: "resolve", Limit: 100, Window: time.Minute}
	redirectRule = ratelimit.Rule{Route: "redirect", Limit: 100, Window: time.Minute}
	createRule   = ratelimit.Rule{Route: "create", Limit: 10, Window: time.Minute}
	loginRule    = ratelimit.Rule{Route: "login", Limit: 5, Window: time.Minute}
)

// Deps 是 HTTP 层需要的全部依赖，由 cmd/api 组装。
// Limiter 为 nil 时不限流。
type Deps struct {
	Resolver  Resolver
	Creator   Creator
	Inspector Inspector
	Tokens    auth.TokenService
	Admin     Authenticator
	Limiter   httpmiddleware.Allower
}

// RegisterAPIRoutes 在 /api 分组下挂载短链 API。
//
// 本包只做传输层工作：解析请求、调用领域对象、把错误映射成状态码。
func RegisterAPIRoutes(api *gin.RouterGroup, d Deps) {
	api.GET("/url/:token", httpmiddleware.RateLimit(d.Limiter, resolveRule), NewResolveHandler(d.Resolver))
	api.POST("/url", httpmiddleware.RateLimit(d.Limiter, createRule), NewCreateHandler(d.Creator))
	api.GET("/url/:token/stats", NewStatsHandler(d.Inspector))

	api.POST("/admin/login", httpmiddleware.RateLimit(d.Limiter, loginRule), NewLoginHandler(d.Admin, d.Tokens))

	// 需要管理员的
	admin := api.Group("/admin")
	admin.Use(httpmiddleware.AuthRequired(d.Tokens), httpmiddleware.RequireRole(auth.RoleAdmin))
	admin.GET("/url/:token/clicks", NewClicksHandler(d.Inspector))
}

// RegisterPublicRoutes 在根路由上挂载跳转入口 GET /:token。
//
// 跳转不放在 /api 下，用户直接在浏览器里访问 BaseURL/token。
func RegisterPublicRoutes(engine *gin.Engine, d Deps) {
	engine.GET("/:token", httpmiddleware.RateLimit(d.Limiter, redirectRule), NewRedirectHandler(d.Resolver))
}
