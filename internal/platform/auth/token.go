package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService 签发/校验管理接口的 bearer token。
type TokenService interface {
	Sign(id Identity) (string, error)
	Verify(token string) (Identity, error)
}

type hs256Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewHS256Service(secret, issuer string, ttl time.Duration) (TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if issuer == "" {
		return nil, errors.New("jwt issuer is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be > 0")
	}
	return &hs256Service{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

func (h *hs256Service) Sign(id Identity) (string, error) {
	if id.Subject == "" {
		return "", errors.New("empty subject")
	}
	now := time.Now()
	c := claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(h.secret)
}

func (h *hs256Service) Verify(tokenString string) (Identity, error) {
	var parsed claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(h.issuer),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(tokenString, &parsed, func(*jwt.Token) (any, error) {
		return h.secret, nil
	}); err != nil {
		return Identity{}, err
	}
	return Identity{Subject: parsed.Subject, Role: parsed.Role}, nil
}
