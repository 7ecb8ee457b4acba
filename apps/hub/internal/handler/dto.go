package handler

import (
	"strconv"
	"time"

	"ChatHub/apps/hub/internal/account"
	"ChatHub/model"
)

// ==================== 账号 ====================

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email" binding:"omitempty,email"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt int64             `json:"expiresAt"` // unix 秒
	User      *account.UserView `json:"user"`
}

// SearchRequest 用户搜索
type SearchRequest struct {
	Query string `form:"query" binding:"required"`
}

// UpdateProfileRequest nil 字段不修改
type UpdateProfileRequest struct {
	Status        *string `json:"status"`
	StatusMessage *string `json:"statusMessage"`
	Avatar        *string `json:"avatar"`
}

// UpdateSettingsRequest nil 字段不修改
type UpdateSettingsRequest struct {
	Theme               *string `json:"theme"`
	Notifications       *bool   `json:"notifications"`
	Sounds              *bool   `json:"sounds"`
	ShowOnline          *bool   `json:"showOnline"`
	AllowFriendRequests *bool   `json:"allowFriendRequests"`
	Language            *string `json:"language"`
}

// SettingsResponse 用户设置
type SettingsResponse struct {
	Theme               string    `json:"theme"`
	Notifications       bool      `json:"notifications"`
	Sounds              bool      `json:"sounds"`
	ShowOnline          bool      `json:"showOnline"`
	AllowFriendRequests bool      `json:"allowFriendRequests"`
	Language            string    `json:"language"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func newSettingsResponse(st *model.UserSetting) *SettingsResponse {
	return &SettingsResponse{
		Theme:               st.Theme,
		Notifications:       st.Notifications,
		Sounds:              st.Sounds,
		ShowOnline:          st.ShowOnline,
		AllowFriendRequests: st.AllowFriendRequests,
		Language:            st.Language,
		UpdatedAt:           st.UpdatedAt,
	}
}

// ==================== 好友 ====================

// FriendRequestCreate 发起好友申请
type FriendRequestCreate struct {
	ToUserID string `json:"toUserId" binding:"required"`
}

// FriendRequestCreated 申请结果
type FriendRequestCreated struct {
	RequestID string    `json:"requestId"`
	ToUserID  string    `json:"toUserId"`
	CreatedAt time.Time `json:"createdAt"`
}

// FriendRespondRequest 处理好友申请，action 为 accept / reject
type FriendRespondRequest struct {
	RequestID string `json:"requestId" binding:"required"`
	Action    string `json:"action" binding:"required"`
}

func newFriendRequestCreated(req *model.FriendRequest) *FriendRequestCreated {
	return &FriendRequestCreated{
		RequestID: strconv.FormatInt(req.Id, 10),
		ToUserID:  req.ToUuid,
		CreatedAt: req.CreatedAt,
	}
}
