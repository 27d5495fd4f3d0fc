package httpmiddleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// 同机 Caddy / 内网 / docker bridge 默认可信
var defaultTrustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
}

// ConfigureClientIP 让 c.ClientIP() 返回真实客户端 IP（用于限流/审计/统计）。
//
// 只有直连对端是可信代理时才看转发头，否则客户端可以伪造 X-Forwarded-For 绕过按 IP 的限流。
// Cloudflare -> Caddy -> app：CF-Connecting-IP 优先。
// extra 是 TRUSTED_PROXIES 里额外的网段，单个 IP 也可以。
func ConfigureClientIP(engine *gin.Engine, extra []string) error {
	proxies := append([]string(nil), defaultTrustedProxies...)
	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	engine.ForwardedByClientIP = true
	engine.RemoteIPHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}
	return engine.SetTrustedProxies(proxies)
}
