package shortlink

import (
	"net/url"
	"regexp"
	"strings"
)

// MaxAliasLength 别名最大长度
const MaxAliasLength = 32

// 生成的 shortId 只用 [A-Za-z0-9_-]，别名另外允许 '.'。
// 读路径接受的 token 必须符合其中之一。
var (
	aliasRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,32}$`)
)

// 会遮住公开路由的别名
var reservedAliases = map[string]struct{}{
	"api":         {},
	"healthz":     {},
	"readyz":      {},
	"metrics":     {},
	"favicon.ico": {},
}

// IsAbsoluteHTTPURL 校验 raw 是否是 http/https 的绝对 URL。
//
// 设计原因（为什么放在领域层）：
// - HTTP handler 和 Creator 共用一套规则，不会各写一遍
//
// 规则：
// - scheme 必须是 http/https（大小写不敏感）
// - host 不能为空
func IsAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return strings.TrimSpace(u.Hostname()) != ""
}

// NormalizeURL 没有 scheme 时补上 https://
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

// HasDottedHostname 粗略检查域名：host 里必须有点。
func HasDottedHostname(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Hostname(), ".")
}

// ValidateAlias 校验去掉首尾空白后的非空别名。
func ValidateAlias(alias string) error {
	if len(alias) > MaxAliasLength {
		return &ValidationError{Field: "customAlias", Reason: "must be at most 32 characters"}
	}
	if !aliasRe.MatchString(alias) {
		return &ValidationError{Field: "customAlias", Reason: "only letters, digits, '-', '_' and '.' are allowed"}
	}
	if alias == "." || alias == ".." {
		return &ValidationError{Field: "customAlias", Reason: "is not allowed"}
	}
	if _, ok := reservedAliases[strings.ToLower(alias)]; ok {
		return &ValidationError{Field: "customAlias", Reason: "is reserved"}
	}
	return nil
}

func ValidToken(token string) bool {
	return tokenRe.MatchString(token)
}
