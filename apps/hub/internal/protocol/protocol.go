// Package protocol 定义 /ws 上下行帧的类型名与数据结构。
//
// 帧格式统一为 {"type": string, "data": object}。
package protocol

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"ChatHub/model"
)

// 上行帧类型
const (
	TypeJoin         = "join"
	TypeSendMessage  = "sendMessage"
	TypeMarkRead     = "markRead"
	TypeStartCall    = "startCall"
	TypeJoinCall     = "joinCall"
	TypeLeaveCall    = "leaveCall"
	TypeSignal       = "signal"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeCandidate    = "candidate"
	TypeUpdateStatus = "updateStatus"
	TypeHeartbeat    = "heartbeat"
)

// 下行帧类型
const (
	TypeStatusChanged  = "statusChanged"
	TypeMessage        = "message"
	TypeMessageAck     = "messageAck"
	TypeMessagesRead   = "messagesRead"
	TypeFriendRequest  = "friendRequest"
	TypeFriendAccepted = "friendAccepted"
	TypeIncomingCall   = "incomingCall"
	TypeCallStarted    = "callStarted"
	TypeCallJoined     = "callJoined"
	TypeMemberJoined   = "memberJoined"
	TypeMemberLeft     = "memberLeft"
	TypeCallLeft       = "callLeft"
	TypeLevelUp        = "levelUp"
	TypeProfileUpdated = "profileUpdated"
	TypeJoined         = "joined"
	TypeHeartbeatAck   = "heartbeatAck"
	TypeError          = "error"
)

// Envelope 上行帧
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Frame 下行帧，Data 为 nil 时省略 data 字段
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ErrTypeRequired 帧缺少 type
var ErrTypeRequired = errors.New("type is required")

// ParseEnvelope 解析客户端上行帧
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	env.Type = strings.TrimSpace(env.Type)
	if env.Type == "" {
		return nil, ErrTypeRequired
	}
	return &env, nil
}

// Decode 解析 data，data 缺省时保持 v 的零值
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Encode 序列化下行帧
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// ==================== 上行数据 ====================

// ProfileData join 帧中客户端自带的资料快照
type ProfileData struct {
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Status   string `json:"status,omitempty"`
}

type JoinData struct {
	UserID  string       `json:"userId,omitempty"`
	Profile *ProfileData `json:"profile,omitempty"`
}

type SendMessageData struct {
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
}

type MarkReadData struct {
	PeerID string `json:"peerId"`
}

type StartCallData struct {
	CalleeID string `json:"calleeId"`
}

type JoinCallData struct {
	CallID string `json:"callId"`
}

// SignalData 信令上行，payload 原样转发
type SignalData struct {
	Kind    string          `json:"kind"`
	ToID    string          `json:"toId"`
	Payload json.RawMessage `json:"payload"`
}

type UpdateStatusData struct {
	Status string `json:"status"`
}

// ==================== 下行数据 ====================

type StatusChangedData struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
	Status   string `json:"status,omitempty"`
}

// MessageData message / messageAck 共用
type MessageData struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
	IsRead     bool      `json:"isRead"`
}

// NewMessageData 由持久化消息构造下行数据
func NewMessageData(m *model.Message) MessageData {
	return MessageData{
		ID:         strconv.FormatInt(m.Id, 10),
		SenderID:   m.SenderUuid,
		ReceiverID: m.ReceiverUuid,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
		IsRead:     m.IsRead,
	}
}

type MessagesReadData struct {
	ReaderID string `json:"readerId"`
	Count    int64  `json:"count"`
}

type FriendRequestData struct {
	ID           string    `json:"id"`
	FromUserID   string    `json:"fromUserId"`
	FromUsername string    `json:"fromUsername"`
	FromAvatar   string    `json:"fromAvatar,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type FriendAcceptedData struct {
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar,omitempty"`
}

type IncomingCallData struct {
	CallID     string `json:"callId"`
	CallerID   string `json:"callerId"`
	CallerName string `json:"callerName"`
}

type CallStartedData struct {
	CallID   string `json:"callId"`
	CalleeID string `json:"calleeId"`
}

type CallJoinedData struct {
	CallID  string   `json:"callId"`
	Members []string `json:"members"`
}

// MemberData memberJoined / memberLeft 共用
type MemberData struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
}

type CallLeftData struct {
	CallID string `json:"callId"`
}

type SignalOutData struct {
	Kind    string          `json:"kind"`
	FromID  string          `json:"fromId"`
	Payload json.RawMessage `json:"payload"`
}

type LevelUpData struct {
	Level  int      `json:"level"`
	Xp     int64    `json:"xp"`
	Badges []string `json:"badges"`
}

type ProfileUpdatedData struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type JoinedData struct {
	UserID      string   `json:"userId"`
	OnlineUsers []string `json:"onlineUsers"`
}

type HeartbeatAckData struct {
	Timestamp int64 `json:"ts"`
}

// ErrorData type=error 的 data
type ErrorData struct {
	Code        int32  `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"requestType,omitempty"`
}
