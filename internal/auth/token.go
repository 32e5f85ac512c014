package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService 负责 WebSocket 令牌的签发与校验。浏览器端拿不到内部
// 密钥头，改走一次性令牌：先用密钥换短期 JWT，再在 ws 握手里出示。
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// TokenClaims 是 ws 令牌里的业务字段。
type TokenClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// IssueWsToken 签发一个短期 ws 令牌。
func (s *TokenService) IssueWsToken() (string, error) {
	now := time.Now()
	claims := TokenClaims{
		TokenType: "ws",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign ws token: %w", err)
	}
	return signed, nil
}

// ValidateWsToken 校验令牌签名、有效期与类型。
func (s *TokenService) ValidateWsToken(tokenString string) error {
	var claims TokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("parse ws token: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid ws token")
	}
	if claims.TokenType != "ws" {
		return fmt.Errorf("unexpected token type %q", claims.TokenType)
	}
	return nil
}
