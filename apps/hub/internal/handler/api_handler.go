package handler

import (
	"context"
	"net/http"
	"strconv"

	"ChatHub/apps/hub/internal/account"
	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/friend"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/apps/hub/internal/relay"
	"ChatHub/consts"
	"ChatHub/pkg/ctxmeta"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/result"

	"github.com/gin-gonic/gin"
)

// maxAvatarForm multipart 表单整体上限，文件本身的大小由对象存储层校验
const maxAvatarForm = 8 << 20

// APIHandler REST 接口：账号、好友、历史消息、设置
type APIHandler struct {
	accounts account.Service
	friends  *friend.Workflow
	relay    *relay.MessageRelay
}

// NewAPIHandler 创建 REST 处理器
func NewAPIHandler(accounts account.Service, friends *friend.Workflow, messages *relay.MessageRelay) *APIHandler {
	return &APIHandler{accounts: accounts, friends: friends, relay: messages}
}

// Register 用户注册
// @Router /api/v1/public/register [post]
func (h *APIHandler) Register(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	user, err := h.accounts.Register(ctx, account.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		h.fail(ctx, c, "注册", err)
		return
	}
	result.Success(c, user)
}

// Login 用户名密码登录，返回 JWT
// @Router /api/v1/public/login [post]
func (h *APIHandler) Login(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	res, err := h.accounts.Login(ctx, req.Username, req.Password)
	if err != nil {
		h.fail(ctx, c, "登录", err)
		return
	}
	result.Success(c, &LoginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.Unix(),
		User:      res.User,
	})
}

// Me 当前用户资料
// @Router /api/v1/profile [get]
func (h *APIHandler) Me(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	user, err := h.accounts.Profile(ctx, CurrentUser(c))
	if err != nil {
		h.fail(ctx, c, "查询资料", err)
		return
	}
	result.Success(c, user)
}

// SearchUsers 按用户名搜索
// @Router /api/v1/users/search [get]
func (h *APIHandler) SearchUsers(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	users, err := h.accounts.Search(ctx, CurrentUser(c), req.Query)
	if err != nil {
		h.fail(ctx, c, "搜索用户", err)
		return
	}
	result.Success(c, users)
}

// UpdateProfile 修改状态、签名或头像地址
// @Router /api/v1/profile [put]
func (h *APIHandler) UpdateProfile(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	user, err := h.accounts.UpdateProfile(ctx, CurrentUser(c), account.ProfileInput{
		Status:        req.Status,
		StatusMessage: req.StatusMessage,
		Avatar:        req.Avatar,
	})
	if err != nil {
		h.fail(ctx, c, "修改资料", err)
		return
	}
	result.Success(c, user)
}

// UploadAvatar 上传头像，表单字段 avatar
// @Router /api/v1/profile/avatar [post]
func (h *APIHandler) UploadAvatar(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarForm)
	fh, err := c.FormFile("avatar")
	if err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	file, err := fh.Open()
	if err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	defer file.Close()

	user, err := h.accounts.UploadAvatar(ctx, CurrentUser(c), fh.Filename, file, fh.Size)
	if err != nil {
		h.fail(ctx, c, "上传头像", err)
		return
	}
	result.Success(c, user)
}

// GetSettings 查询设置
// @Router /api/v1/settings [get]
func (h *APIHandler) GetSettings(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	st, err := h.accounts.GetSettings(ctx, CurrentUser(c))
	if err != nil {
		h.fail(ctx, c, "查询设置", err)
		return
	}
	result.Success(c, newSettingsResponse(st))
}

// UpdateSettings 修改设置
// @Router /api/v1/settings [put]
func (h *APIHandler) UpdateSettings(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	st, err := h.accounts.UpdateSettings(ctx, CurrentUser(c), account.SettingsInput{
		Theme:               req.Theme,
		Notifications:       req.Notifications,
		Sounds:              req.Sounds,
		ShowOnline:          req.ShowOnline,
		AllowFriendRequests: req.AllowFriendRequests,
		Language:            req.Language,
	})
	if err != nil {
		h.fail(ctx, c, "修改设置", err)
		return
	}
	result.Success(c, newSettingsResponse(st))
}

// ListFriends 好友列表
// @Router /api/v1/friends [get]
func (h *APIHandler) ListFriends(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	friends, err := h.friends.ListFriends(ctx, CurrentUser(c))
	if err != nil {
		h.fail(ctx, c, "查询好友列表", err)
		return
	}
	result.Success(c, friends)
}

// ListFriendRequests 待处理的好友申请
// @Router /api/v1/friends/requests [get]
func (h *APIHandler) ListFriendRequests(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	reqs, err := h.friends.ListPending(ctx, CurrentUser(c))
	if err != nil {
		h.fail(ctx, c, "查询好友申请", err)
		return
	}
	result.Success(c, reqs)
}

// SendFriendRequest 发起好友申请
// @Router /api/v1/friends/request [post]
func (h *APIHandler) SendFriendRequest(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req FriendRequestCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	created, err := h.friends.Create(ctx, CurrentUser(c), req.ToUserID)
	if err != nil {
		h.fail(ctx, c, "发起好友申请", err)
		return
	}
	result.Success(c, newFriendRequestCreated(created))
}

// RespondFriendRequest 接受或拒绝好友申请
// @Router /api/v1/friends/respond [post]
func (h *APIHandler) RespondFriendRequest(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req FriendRespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	requestID, err := strconv.ParseInt(req.RequestID, 10, 64)
	if err != nil {
		result.FailWithMessage(c, nil, "requestId is invalid", consts.CodeParamError)
		return
	}

	if err := h.friends.Resolve(ctx, requestID, req.Action, CurrentUser(c)); err != nil {
		h.fail(ctx, c, "处理好友申请", err)
		return
	}
	result.Success(c, nil)
}

// History 与某人的历史消息，按时间正序
// @Router /api/v1/messages/:peerId [get]
func (h *APIHandler) History(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	msgs, err := h.relay.History(ctx, CurrentUser(c), c.Param("peerId"))
	if err != nil {
		h.fail(ctx, c, "查询历史消息", err)
		return
	}
	out := make([]protocol.MessageData, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, protocol.NewMessageData(m))
	}
	result.Success(c, out)
}

// fail 业务错误原样返回 code；其余错误记日志并统一为内部错误
func (h *APIHandler) fail(ctx context.Context, c *gin.Context, action string, err error) {
	if e, ok := apperr.As(err); ok {
		result.FailWithMessage(c, nil, e.Message, e.Code)
		return
	}
	logger.Error(ctx, action+"服务内部错误",
		logger.ErrorField("error", err),
	)
	result.Fail(c, nil, consts.CodeInternalError)
}
