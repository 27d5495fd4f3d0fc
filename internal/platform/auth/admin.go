package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// RoleAdmin 访问点击明细等管理接口需要的角色。
const RoleAdmin = "admin"

// Identity 通过认证的调用方。Subject 对应 JWT 的 sub，管理员就是用户名。
type Identity struct {
	Subject string
	Role    string
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

type identityKey struct{}

// WithIdentity 由 httpmiddleware.AuthRequired 在校验 token 后调用。
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// AdminAuthenticator 校验单个管理员账号，密码以 bcrypt hash 保存在配置里。
type AdminAuthenticator struct {
	username string
	hash     []byte
}

// NewAdminAuthenticator hash 为空时所有登录都会失败。
func NewAdminAuthenticator(username, passwordHash string) *AdminAuthenticator {
	return &AdminAuthenticator{username: username, hash: []byte(passwordHash)}
}

func (a *AdminAuthenticator) Enabled() bool {
	return a != nil && a.username != "" && len(a.hash) > 0
}

// Authenticate 成功返回管理员 Identity，否则 ErrInvalidCredentials。
func (a *AdminAuthenticator) Authenticate(username, password string) (Identity, error) {
	if !a.Enabled() {
		return Identity{}, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// 用户名不对也跑一次 bcrypt，避免通过耗时区分
	pwErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !userOK || pwErr != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Subject: a.username, Role: RoleAdmin}, nil
}

// HashPassword 生成 ADMIN_PASSWORD_HASH 用的 bcrypt hash。
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
