// Package signaling 在通话双方之间原样转发 WebRTC 信令（offer/answer/candidate）。
package signaling

import (
	"context"
	"encoding/json"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/metrics"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/pkg/logger"
)

const (
	KindOffer     = "offer"
	KindAnswer    = "answer"
	KindCandidate = "candidate"
)

// ValidKind 是否为受支持的信令类型
func ValidKind(kind string) bool {
	switch kind {
	case KindOffer, KindAnswer, KindCandidate:
		return true
	}
	return false
}

// Notifier 向在线用户推送
type Notifier interface {
	SendTo(userID string, f protocol.Frame) bool
}

// Relay 信令转发，不检查 payload 内容，也不校验双方是否在同一通话
type Relay struct {
	notifier Notifier
}

func NewRelay(notifier Notifier) *Relay {
	return &Relay{notifier: notifier}
}

// Relay 把 payload 转发给 toID。对方离线时静默丢弃，返回 false 且不报错。
func (r *Relay) Relay(ctx context.Context, kind, fromID, toID string, payload json.RawMessage) (bool, error) {
	if !ValidKind(kind) {
		return false, apperr.ErrSignalKind
	}
	if fromID == "" || toID == "" {
		return false, apperr.Validation("fromId and toId are required")
	}

	ok := r.notifier.SendTo(toID, protocol.Frame{
		Type: protocol.TypeSignal,
		Data: protocol.SignalOutData{Kind: kind, FromID: fromID, Payload: payload},
	})
	if !ok {
		metrics.SignalsRelayed.WithLabelValues(kind, "dropped").Inc()
		logger.Debug(ctx, "信令目标不在线，丢弃",
			logger.String("kind", kind),
			logger.String("from", fromID),
			logger.String("to", toID),
		)
		return false, nil
	}
	metrics.SignalsRelayed.WithLabelValues(kind, "forwarded").Inc()
	return true, nil
}
