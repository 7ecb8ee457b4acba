// Package account 处理注册、登录、资料、设置与头像，身份数据落在用户仓库。
package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/model"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/minio"
	"ChatHub/pkg/util"

	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt 上限
	minQueryLen    = 2
	searchLimit    = 20
	maxStatusLen   = 100
)

var themes = map[string]struct{}{"dark": {}, "light": {}}

// TokenIssuer 登录令牌签发
type TokenIssuer interface {
	Generate(userUUID, username string) (string, time.Time, error)
}

// AvatarUploader 头像对象存储
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, userUUID, fileName string, reader io.Reader, size int64) (string, error)
}

// LiveView 在线状态查询与资料变更同步
type LiveView interface {
	IsOnline(userID string) bool
	SyncProfile(ctx context.Context, u *model.UserInfo)
}

// RegisterInput 注册参数
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// ProfileInput 资料修改，nil 字段不修改
type ProfileInput struct {
	Status        *string
	StatusMessage *string
	Avatar        *string
}

// SettingsInput 设置修改，nil 字段不修改
type SettingsInput struct {
	Theme               *string
	Notifications       *bool
	Sounds              *bool
	ShowOnline          *bool
	AllowFriendRequests *bool
	Language            *string
}

// LoginResult 登录结果
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *UserView
}

// UserView 对外展示的用户资料
type UserView struct {
	UserID        string     `json:"userId"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	Avatar        string     `json:"avatar,omitempty"`
	Status        string     `json:"status,omitempty"`
	StatusMessage string     `json:"statusMessage,omitempty"`
	Level         int        `json:"level"`
	Xp            int64      `json:"xp"`
	Badges        []string   `json:"badges"`
	IsOnline      bool       `json:"isOnline"`
	LastSeenAt    *time.Time `json:"lastSeenAt,omitempty"`
}

// Service 账号服务
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*UserView, error)
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Profile(ctx context.Context, userID string) (*UserView, error)
	Search(ctx context.Context, userID, query string) ([]*UserView, error)
	UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*UserView, error)
	GetSettings(ctx context.Context, userID string) (*model.UserSetting, error)
	UpdateSettings(ctx context.Context, userID string, in SettingsInput) (*model.UserSetting, error)
	UploadAvatar(ctx context.Context, userID, fileName string, reader io.Reader, size int64) (*UserView, error)
}

// serviceImpl 账号服务实现
type serviceImpl struct {
	users    repository.IUserRepository
	settings repository.ISettingRepository
	tokens   TokenIssuer
	avatars  AvatarUploader
	live     LiveView
	newUUID  func() string
}

// NewService 创建账号服务；avatars 为 nil 时头像上传返回服务不可用
func NewService(
	users repository.IUserRepository,
	settings repository.ISettingRepository,
	tokens TokenIssuer,
	avatars AvatarUploader,
	live LiveView,
) Service {
	return &serviceImpl{
		users:    users,
		settings: settings,
		tokens:   tokens,
		avatars:  avatars,
		live:     live,
		newUUID:  util.NewUUID,
	}
}

// Register 用户注册
// 业务流程：
//  1. 校验用户名、密码、邮箱
//  2. 哈希密码，创建用户（等级 1，授予 newbie 徽章）
//  3. 写入默认设置
func (s *serviceImpl) Register(ctx context.Context, in RegisterInput) (*UserView, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return nil, apperr.Validation(fmt.Sprintf("username must be %d-%d characters", minUsernameLen, maxUsernameLen))
	}
	if n := len(in.Password); n < minPasswordLen || n > maxPasswordLen {
		return nil, apperr.Validation(fmt.Sprintf("password must be %d-%d bytes", minPasswordLen, maxPasswordLen))
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, apperr.Validation("email is invalid")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error(ctx, "生成密码哈希失败",
			logger.ErrorField("error", err),
		)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.UserInfo{
		Uuid:     s.newUUID(),
		Username: username,
		Password: string(hashed),
		Email:    email,
		Avatar:   defaultAvatar(username),
		Status:   "online",
		Level:    1,
		Badges:   model.BadgeSet{model.BadgeNewbie},
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperr.ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	// 设置写入失败不影响注册，读取时会按默认值补齐
	if err := s.settings.Save(ctx, model.DefaultUserSetting(user.Uuid)); err != nil {
		logger.Warn(ctx, "写入默认设置失败",
			logger.String("user_uuid", user.Uuid),
			logger.ErrorField("error", err),
		)
	}

	logger.Info(ctx, "用户注册成功",
		logger.String("user_uuid", user.Uuid),
		logger.String("username", username),
	)
	return s.view(user), nil
}

// Login 用户名密码登录，用户不存在与密码错误返回同一个错误
func (s *serviceImpl) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation("username and password are required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, apperr.ErrBadCredentials
		}
		logger.Error(ctx, "查询用户失败",
			logger.ErrorField("error", err),
		)
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperr.ErrBadCredentials
	}

	token, expireAt, err := s.tokens.Generate(user.Uuid, user.Username)
	if err != nil {
		logger.Error(ctx, "生成访问令牌失败",
			logger.ErrorField("error", err),
		)
		return nil, fmt.Errorf("generate token: %w", err)
	}

	logger.Info(ctx, "用户登录成功",
		logger.String("user_uuid", user.Uuid),
	)
	return &LoginResult{Token: token, ExpiresAt: expireAt, User: s.view(user)}, nil
}

func (s *serviceImpl) Profile(ctx context.Context, userID string) (*UserView, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(user), nil
}

// Search 按用户名搜索，至少 2 个字符，结果不含自己
func (s *serviceImpl) Search(ctx context.Context, userID, query string) ([]*UserView, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryLen {
		return nil, apperr.Validation(fmt.Sprintf("query must be at least %d characters", minQueryLen))
	}
	users, err := s.users.Search(ctx, query, userID, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	out := make([]*UserView, 0, len(users))
	for _, u := range users {
		v := s.view(u)
		v.Email = ""
		out = append(out, v)
	}
	return out, nil
}

func (s *serviceImpl) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*UserView, error) {
	patch := repository.ProfilePatch{
		Status:        trimmed(in.Status),
		StatusMessage: trimmed(in.StatusMessage),
		Avatar:        trimmed(in.Avatar),
	}
	if patch.Empty() {
		return nil, apperr.Validation("nothing to update")
	}
	if patch.Status != nil && (*patch.Status == "" || utf8.RuneCountInString(*patch.Status) > maxStatusLen) {
		return nil, apperr.Validation(fmt.Sprintf("status must be 1-%d characters", maxStatusLen))
	}
	if patch.StatusMessage != nil && utf8.RuneCountInString(*patch.StatusMessage) > maxStatusLen {
		return nil, apperr.Validation(fmt.Sprintf("statusMessage must be at most %d characters", maxStatusLen))
	}
	return s.applyPatch(ctx, userID, patch)
}

func (s *serviceImpl) GetSettings(ctx context.Context, userID string) (*model.UserSetting, error) {
	if _, err := s.load(ctx, userID); err != nil {
		return nil, err
	}
	st, err := s.settings.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return st, nil
}

func (s *serviceImpl) UpdateSettings(ctx context.Context, userID string, in SettingsInput) (*model.UserSetting, error) {
	st, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Theme != nil {
		theme := strings.ToLower(strings.TrimSpace(*in.Theme))
		if _, ok := themes[theme]; !ok {
			return nil, apperr.Validation("theme must be dark or light")
		}
		st.Theme = theme
	}
	if in.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*in.Language))
		if n := len(lang); n < 2 || n > 8 {
			return nil, apperr.Validation("language is invalid")
		}
		st.Language = lang
	}
	setBool(&st.Notifications, in.Notifications)
	setBool(&st.Sounds, in.Sounds)
	setBool(&st.ShowOnline, in.ShowOnline)
	setBool(&st.AllowFriendRequests, in.AllowFriendRequests)

	if err := s.settings.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return st, nil
}

// UploadAvatar 上传头像到对象存储并写回资料
func (s *serviceImpl) UploadAvatar(ctx context.Context, userID, fileName string, reader io.Reader, size int64) (*UserView, error) {
	if s.avatars == nil {
		return nil, apperr.ErrUnavailable
	}
	if _, err := s.load(ctx, userID); err != nil {
		return nil, err
	}

	avatarURL, err := s.avatars.UploadAvatar(ctx, userID, fileName, reader, size)
	if err != nil {
		switch {
		case errors.Is(err, minio.ErrFileTooLarge):
			return nil, apperr.ErrFileTooLarge
		case errors.Is(err, minio.ErrFileType):
			return nil, apperr.ErrFileType
		}
		logger.Error(ctx, "头像上传失败",
			logger.String("user_uuid", userID),
			logger.ErrorField("error", err),
		)
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	return s.applyPatch(ctx, userID, repository.ProfilePatch{Avatar: &avatarURL})
}

func (s *serviceImpl) applyPatch(ctx context.Context, userID string, patch repository.ProfilePatch) (*UserView, error) {
	if err := s.users.UpdateProfile(ctx, userID, patch); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.live != nil {
		s.live.SyncProfile(ctx, user)
	}
	return s.view(user), nil
}

func (s *serviceImpl) load(ctx context.Context, userID string) (*model.UserInfo, error) {
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	user, err := s.users.GetByUUID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *serviceImpl) view(u *model.UserInfo) *UserView {
	v := &UserView{
		UserID:        u.Uuid,
		Username:      u.Username,
		Email:         u.Email,
		Avatar:        u.Avatar,
		Status:        u.Status,
		StatusMessage: u.StatusMessage,
		Level:         u.Level,
		Xp:            u.Xp,
		Badges:        u.Badges.Clone(),
		LastSeenAt:    u.LastSeenAt,
	}
	if s.live != nil {
		v.IsOnline = s.live.IsOnline(u.Uuid)
	}
	return v
}

func defaultAvatar(username string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(username) + "&size=64&background=666&color=fff"
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
