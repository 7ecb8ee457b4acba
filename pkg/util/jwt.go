package util

import (
	"errors"
	"time"

	"ChatHub/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid token 解析失败、签名不符或已过期
	ErrTokenInvalid = errors.New("token is invalid")
)

// Claims 登录态载荷。
type Claims struct {
	UserUUID string `json:"user_uuid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer 负责签发与校验 JWT。
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer 创建签发器。
func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}
}

// Generate 为用户签发 access token。
func (t *TokenIssuer) Generate(userUUID, username string) (string, time.Time, error) {
	now := t.now()
	expireAt := now.Add(t.ttl)
	claims := Claims{
		UserUUID: userUUID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userUUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expireAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expireAt, nil
}

// Parse 校验签名与过期时间，返回载荷。
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid || claims.UserUUID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
