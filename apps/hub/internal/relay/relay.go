// Package relay 负责单聊消息：先落库，再投递给在线的接收方，并给发送方回执。
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/gamification"
	"ChatHub/apps/hub/internal/metrics"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/model"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/util"
)

// Notifier 向在线用户推送
type Notifier interface {
	SendTo(userID string, f protocol.Frame) bool
}

// XPGranter 发消息奖励经验
type XPGranter interface {
	GrantXP(ctx context.Context, userID string, amount int64) (*gamification.Result, error)
}

// Options 消息转发参数
type Options struct {
	XPPerMessage   int64 // <=0 表示不奖励
	VerifyReceiver bool  // 是否校验接收方存在
	HistoryLimit   int   // 历史消息条数上限，<=0 不限
}

// MessageRelay 单聊消息转发
type MessageRelay struct {
	messages repository.IMessageRepository
	users    repository.IUserRepository
	notifier Notifier
	xp       XPGranter
	opts     Options
	now      func() time.Time
	nextID   func() int64
}

// NewMessageRelay 创建消息转发器；users 仅在 VerifyReceiver 时使用，xp 可为 nil
func NewMessageRelay(messages repository.IMessageRepository, users repository.IUserRepository, notifier Notifier, xp XPGranter, opts Options) *MessageRelay {
	return &MessageRelay{
		messages: messages,
		users:    users,
		notifier: notifier,
		xp:       xp,
		opts:     opts,
		now:      time.Now,
		nextID:   util.NextID,
	}
}

// Send 持久化并投递一条消息。
// 接收方离线不是错误，消息留在库里等对方拉历史；发送方总会收到 messageAck。
func (r *MessageRelay) Send(ctx context.Context, senderID, receiverID, body string) (*model.Message, error) {
	if senderID == "" || receiverID == "" {
		return nil, apperr.Validation("senderId and receiverId are required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, apperr.ErrEmptyMessage
	}
	if r.opts.VerifyReceiver {
		if _, err := r.users.GetByUUID(ctx, receiverID); err != nil {
			if errors.Is(err, repository.ErrRecordNotFound) {
				return nil, apperr.ErrUserNotFound
			}
			return nil, fmt.Errorf("verify receiver: %w", err)
		}
	}

	msg := &model.Message{
		Id:              r.nextID(),
		SenderUuid:      senderID,
		ReceiverUuid:    receiverID,
		ConversationKey: model.ConversationKey(senderID, receiverID),
		Body:            body,
		CreatedAt:       r.now(),
	}
	if err := r.messages.Append(ctx, msg); err != nil {
		logger.Error(ctx, "消息落库失败",
			logger.String("sender", senderID),
			logger.String("receiver", receiverID),
			logger.ErrorField("error", err),
		)
		return nil, fmt.Errorf("append message: %w", err)
	}

	data := protocol.NewMessageData(msg)
	delivered := r.notifier.SendTo(receiverID, protocol.Frame{Type: protocol.TypeMessage, Data: data})
	r.notifier.SendTo(senderID, protocol.Frame{Type: protocol.TypeMessageAck, Data: data})

	if delivered {
		metrics.MessagesRelayed.WithLabelValues("delivered").Inc()
	} else {
		metrics.MessagesRelayed.WithLabelValues("stored").Inc()
	}

	if r.xp != nil && r.opts.XPPerMessage > 0 {
		if _, err := r.xp.GrantXP(ctx, senderID, r.opts.XPPerMessage); err != nil {
			logger.Warn(ctx, "发消息奖励经验失败",
				logger.String("user_uuid", senderID),
				logger.ErrorField("error", err),
			)
		}
	}
	return msg, nil
}

// History 返回无序对 {a,b} 的消息，按创建顺序
func (r *MessageRelay) History(ctx context.Context, userA, userB string) ([]*model.Message, error) {
	if userA == "" || userB == "" {
		return nil, apperr.Validation("both user ids are required")
	}
	msgs, err := r.messages.ListConversation(ctx, userA, userB, r.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return msgs, nil
}

// MarkRead 把 peer 发给 reader 的未读消息置为已读，并通知 peer
func (r *MessageRelay) MarkRead(ctx context.Context, readerID, peerID string) (int64, error) {
	if readerID == "" || peerID == "" {
		return 0, apperr.Validation("readerId and peerId are required")
	}
	n, err := r.messages.MarkRead(ctx, readerID, peerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if n > 0 {
		r.notifier.SendTo(peerID, protocol.Frame{
			Type: protocol.TypeMessagesRead,
			Data: protocol.MessagesReadData{ReaderID: readerID, Count: n},
		})
	}
	return n, nil
}
