// Package mailer delivers one-time login codes over SMTP. It is the only
// outbound e-mail surface of the service.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender sends OTP codes through an SMTP relay. It satisfies the
// service.OTPSender interface.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// SendCode delivers a one-time login code to the given address. The context
// is accepted for interface symmetry; net/smtp does not support cancellation
// mid-send, so only an already-cancelled context short-circuits.
func (s *SMTPSender) SendCode(ctx context.Context, email, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := buildOTPMessage(s.cfg.From, email, code)
	if err := s.send(addr, auth, s.cfg.From, []string{email}, msg); err != nil {
		return fmt.Errorf("failed to send otp email: %w", err)
	}

	return nil
}

func buildOTPMessage(from, to, code string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Your verification code\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Your verification code is %s. It expires in 5 minutes.\r\n", code)
	return []byte(b.String())
}
