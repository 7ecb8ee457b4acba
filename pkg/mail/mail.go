package mail

import (
	"context"
	"errors"
	"strings"

	"ChatHub/config"

	"gopkg.in/gomail.v2"
)

// ErrDisabled 未配置 SMTP
var ErrDisabled = errors.New("mail sender disabled")

// Sender SMTP 发件器
type Sender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSender 根据配置创建发件器；Host 为空时返回 nil。
func NewSender(cfg config.MailConfig) *Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil
	}
	return &Sender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send 发送纯文本邮件。gomail 不支持 ctx，这里只在发送前检查一次取消。
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	if s == nil {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return s.dialer.DialAndSend(m)
}
