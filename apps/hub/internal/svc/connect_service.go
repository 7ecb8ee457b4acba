package svc

import (
	"context"
	"errors"
	"strings"

	"ChatHub/apps/hub/internal/repository"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/util"
)

var (
	// ErrTokenRequired 握手参数中缺少 token。
	ErrTokenRequired = errors.New("token is required")
	// ErrTokenInvalid token 非法、已过期，或对应的用户不存在。
	ErrTokenInvalid = errors.New("token is invalid")
)

// TokenParser 校验登录令牌
type TokenParser interface {
	Parse(token string) (*util.Claims, error)
}

// Session 连接鉴权后的身份信息，在整个连接生命周期中复用。
type Session struct {
	UserUUID string
	Username string
	ClientIP string
}

// ConnectService 负责 /ws 握手鉴权。
type ConnectService struct {
	tokens TokenParser
	users  repository.IUserRepository
}

// NewConnectService 创建握手鉴权服务；users 为 nil 时只校验 JWT。
func NewConnectService(tokens TokenParser, users repository.IUserRepository) *ConnectService {
	return &ConnectService{tokens: tokens, users: users}
}

// Authenticate 校验握手参数与登录态。
// 1. token 不能为空（支持带 "Bearer " 前缀）；
// 2. 解析 JWT，校验签名、签发者与过期时间；
// 3. users 可用时确认用户存在。
//
// 用户仓库短暂故障时降级为仅 JWT 校验，优先保证接入可用。
func (s *ConnectService) Authenticate(ctx context.Context, token, clientIP string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrTokenRequired
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if s.users != nil {
		_, getErr := s.users.GetByUUID(ctx, claims.UserUUID)
		switch {
		case errors.Is(getErr, repository.ErrRecordNotFound):
			return nil, ErrTokenInvalid
		case getErr != nil:
			logger.Warn(ctx, "连接鉴权查询用户失败，降级为仅 JWT 校验",
				logger.String("user_uuid", claims.UserUUID),
				logger.ErrorField("error", getErr),
			)
		}
	}

	return &Session{
		UserUUID: claims.UserUUID,
		Username: claims.Username,
		ClientIP: strings.TrimSpace(clientIP),
	}, nil
}
