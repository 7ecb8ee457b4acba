// Package friend 实现好友申请的状态机：none → pending → accepted | rejected。
//
// 申请处理完即删除；接受时先建立好友关系再删申请。
package friend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/model"
	"ChatHub/pkg/async"
	"ChatHub/pkg/keylock"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/util"
)

const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

const mailTimeout = 10 * time.Second

// Notifier 在线推送与在线判断
type Notifier interface {
	SendTo(userID string, f protocol.Frame) bool
	IsOnline(userID string) bool
}

// Mailer 离线邮件通知
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// FriendView 好友列表项
type FriendView struct {
	UserID        string     `json:"userId"`
	Username      string     `json:"username"`
	Avatar        string     `json:"avatar,omitempty"`
	Status        string     `json:"status,omitempty"`
	StatusMessage string     `json:"statusMessage,omitempty"`
	Level         int        `json:"level"`
	IsOnline      bool       `json:"isOnline"`
	LastSeenAt    *time.Time `json:"lastSeenAt,omitempty"`
}

// Workflow 好友申请流程
type Workflow struct {
	users     repository.IUserRepository
	relations repository.IRelationRepository
	settings  repository.ISettingRepository
	notifier  Notifier
	mailer    Mailer

	locks  *keylock.KeyLock
	now    func() time.Time
	nextID func() int64
}

// NewWorkflow 创建好友流程；mailer 为 nil 时不发离线邮件
func NewWorkflow(users repository.IUserRepository, relations repository.IRelationRepository, settings repository.ISettingRepository, notifier Notifier, mailer Mailer) *Workflow {
	return &Workflow{
		users:     users,
		relations: relations,
		settings:  settings,
		notifier:  notifier,
		mailer:    mailer,
		locks:     keylock.New(),
		now:       time.Now,
		nextID:    util.NextID,
	}
}

// Create 发起好友申请。同一有序对串行处理，唯一索引兜底。
func (w *Workflow) Create(ctx context.Context, fromID, toID string) (*model.FriendRequest, error) {
	if fromID == "" || toID == "" {
		return nil, apperr.Validation("fromUserId and toUserId are required")
	}
	if fromID == toID {
		return nil, apperr.ErrSelfRequest
	}

	unlock := w.locks.Lock("create:" + fromID + ">" + toID)
	defer unlock()

	sender, err := w.loadUser(ctx, fromID)
	if err != nil {
		return nil, err
	}
	target, err := w.loadUser(ctx, toID)
	if err != nil {
		return nil, err
	}

	friends, err := w.relations.AreFriends(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("check friendship: %w", err)
	}
	if friends {
		return nil, apperr.ErrAlreadyFriends
	}

	if _, err := w.relations.FindRequest(ctx, fromID, toID); err == nil {
		return nil, apperr.ErrRequestPending
	} else if !errors.Is(err, repository.ErrRecordNotFound) {
		return nil, fmt.Errorf("find request: %w", err)
	}

	setting, err := w.settings.Get(ctx, toID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !setting.AllowFriendRequests {
		return nil, apperr.ErrRequestsDisabled
	}

	req := &model.FriendRequest{
		Id:        w.nextID(),
		FromUuid:  fromID,
		ToUuid:    toID,
		Status:    model.FriendRequestPending,
		CreatedAt: w.now(),
	}
	if err := w.relations.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperr.ErrRequestPending
		}
		return nil, fmt.Errorf("create request: %w", err)
	}

	data := protocol.FriendRequestData{
		ID:           strconv.FormatInt(req.Id, 10),
		FromUserID:   fromID,
		FromUsername: sender.Username,
		FromAvatar:   sender.Avatar,
		CreatedAt:    req.CreatedAt,
	}
	if !w.notifier.SendTo(toID, protocol.Frame{Type: protocol.TypeFriendRequest, Data: data}) {
		w.mailOffline(ctx, target, sender.Username)
	}

	logger.Info(ctx, "好友申请已创建",
		logger.String("from", fromID),
		logger.String("to", toID),
		logger.Int64("request_id", req.Id),
	)
	return req, nil
}

// Resolve 处理好友申请。actorID 非空时必须是被申请人。
// 已处理（已删除）的申请再次处理返回 ErrRequestNotFound。
func (w *Workflow) Resolve(ctx context.Context, requestID int64, action, actorID string) error {
	action = strings.ToLower(strings.TrimSpace(action))
	if action != ActionAccept && action != ActionReject {
		return apperr.ErrInvalidAction
	}

	unlock := w.locks.Lock("resolve:" + strconv.FormatInt(requestID, 10))
	defer unlock()

	req, err := w.relations.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return apperr.ErrRequestNotFound
		}
		return fmt.Errorf("load request: %w", err)
	}
	if actorID != "" && actorID != req.ToUuid {
		return apperr.ErrNotRecipient
	}

	if action == ActionAccept {
		f := model.NewFriendship(w.nextID(), req.FromUuid, req.ToUuid, w.now())
		if err := w.relations.CreateFriendship(ctx, f); err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
			return fmt.Errorf("create friendship: %w", err)
		}
	}

	if err := w.relations.DeleteRequest(ctx, req.Id); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return apperr.ErrRequestNotFound
		}
		return fmt.Errorf("delete request: %w", err)
	}

	if action == ActionAccept {
		w.dropReverse(ctx, req)
		w.notifyAccepted(ctx, req)
	}

	logger.Info(ctx, "好友申请已处理",
		logger.Int64("request_id", req.Id),
		logger.String("action", action),
		logger.String("from", req.FromUuid),
		logger.String("to", req.ToUuid),
	)
	return nil
}

// ListPending 发给 userID 的待处理申请
func (w *Workflow) ListPending(ctx context.Context, userID string) ([]protocol.FriendRequestData, error) {
	reqs, err := w.relations.ListPendingTo(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.FromUuid)
	}
	senders, err := w.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]protocol.FriendRequestData, 0, len(reqs))
	for _, r := range reqs {
		item := protocol.FriendRequestData{
			ID:         strconv.FormatInt(r.Id, 10),
			FromUserID: r.FromUuid,
			CreatedAt:  r.CreatedAt,
		}
		if u, ok := senders[r.FromUuid]; ok {
			item.FromUsername = u.Username
			item.FromAvatar = u.Avatar
		}
		out = append(out, item)
	}
	return out, nil
}

// ListFriends 好友资料，在线状态取自注册表；对方关闭“显示在线”时一律显示离线
func (w *Workflow) ListFriends(ctx context.Context, userID string) ([]FriendView, error) {
	ids, err := w.relations.ListFriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	users, err := w.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]FriendView, 0, len(ids))
	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			continue
		}
		view := FriendView{
			UserID:        u.Uuid,
			Username:      u.Username,
			Avatar:        u.Avatar,
			Status:        u.Status,
			StatusMessage: u.StatusMessage,
			Level:         u.Level,
			LastSeenAt:    u.LastSeenAt,
		}
		if w.notifier.IsOnline(id) {
			view.IsOnline = true
			if st, err := w.settings.Get(ctx, id); err == nil && !st.ShowOnline {
				view.IsOnline = false
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// AreFriends 是否为好友
func (w *Workflow) AreFriends(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" {
		return false, apperr.Validation("both user ids are required")
	}
	return w.relations.AreFriends(ctx, a, b)
}

func (w *Workflow) loadUser(ctx context.Context, userID string) (*model.UserInfo, error) {
	u, err := w.users.GetByUUID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return u, nil
}

func (w *Workflow) usersByID(ctx context.Context, ids []string) (map[string]*model.UserInfo, error) {
	list, err := w.users.BatchGetByUUIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("batch load users: %w", err)
	}
	out := make(map[string]*model.UserInfo, len(list))
	for _, u := range list {
		out[u.Uuid] = u
	}
	return out, nil
}

// dropReverse 接受后对方发来的反向申请已无意义，尽力清理
func (w *Workflow) dropReverse(ctx context.Context, req *model.FriendRequest) {
	reverse, err := w.relations.FindRequest(ctx, req.ToUuid, req.FromUuid)
	if err != nil {
		return
	}
	if err := w.relations.DeleteRequest(ctx, reverse.Id); err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		logger.Warn(ctx, "清理反向好友申请失败",
			logger.Int64("request_id", reverse.Id),
			logger.ErrorField("error", err),
		)
	}
}

func (w *Workflow) notifyAccepted(ctx context.Context, req *model.FriendRequest) {
	data := protocol.FriendAcceptedData{
		RequestID: strconv.FormatInt(req.Id, 10),
		UserID:    req.ToUuid,
	}
	if u, err := w.users.GetByUUID(ctx, req.ToUuid); err == nil {
		data.Username = u.Username
		data.Avatar = u.Avatar
	} else {
		logger.Warn(ctx, "读取被申请人资料失败",
			logger.String("user_uuid", req.ToUuid),
			logger.ErrorField("error", err),
		)
	}
	w.notifier.SendTo(req.FromUuid, protocol.Frame{Type: protocol.TypeFriendAccepted, Data: data})
}

func (w *Workflow) mailOffline(ctx context.Context, target *model.UserInfo, fromName string) {
	if w.mailer == nil || target.Email == "" {
		return
	}
	to := target.Email
	async.RunSafe(ctx, func(ctx context.Context) {
		subject := "New friend request"
		body := fmt.Sprintf("%s wants to add you as a friend.", fromName)
		if err := w.mailer.Send(ctx, to, subject, body); err != nil {
			logger.Warn(ctx, "好友申请邮件发送失败",
				logger.String("to", to),
				logger.ErrorField("error", err),
			)
		}
	}, mailTimeout)
}
