// Package mail delivers HTML email.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Zhima-Mochi/paylink/internal/application/notification"
	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/observability/logctx"
)

var ErrNotConfigured = errors.New("mail: smtp host, username and password are required")

type Message = notification.Message

var (
	_ notification.Mailer = (*SMTP)(nil)
	_ notification.Mailer = (*LogMailer)(nil)
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether enough settings exist to attempt delivery.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// Sender returns From, or noreply@<first label of Host>.com.
func (c SMTPConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	label, _, _ := strings.Cut(c.Host, ".")
	return "noreply@" + label + ".com"
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends through an authenticated relay with STARTTLS negotiated by net/smtp.
type SMTP struct {
	cfg  SMTPConfig
	send sendFunc
	now  func() time.Time
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTP{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (s *SMTP) Send(ctx context.Context, m Message) error {
	if !s.cfg.Configured() {
		return ErrNotConfigured
	}
	if m.To == "" {
		return fmt.Errorf("mail: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.cfg.Sender()
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	if err := s.send(addr, auth, from, []string{m.To}, s.compose(from, m)); err != nil {
		return fmt.Errorf("mail: send to %s: %w", m.To, err)
	}
	return nil
}

func (s *SMTP) compose(from string, m Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + m.To + "\r\n")
	b.WriteString("Subject: " + m.Subject + "\r\n")
	b.WriteString("Date: " + s.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: <" + uuid.NewString() + "@" + s.cfg.Host + ">\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.HTML)
	return []byte(b.String())
}

// LogMailer records messages instead of delivering them. Used when SMTP is not configured.
type LogMailer struct {
	logger observability.Logger
}

func NewLogMailer(logger observability.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (l *LogMailer) Send(ctx context.Context, m Message) error {
	logctx.FromOr(ctx, l.logger).Info("mail_skipped",
		observability.F("to", m.To),
		observability.F("subject", m.Subject),
		observability.F("reason", "smtp not configured"),
	)
	return nil
}
