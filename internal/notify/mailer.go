package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// Email is one outgoing message. HTML is optional.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends a single email. A nil error means the server accepted it.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// SendError wraps a transport failure from either channel.
type SendError struct {
	Channel string // "email" or "push"
	Err     error
}

func (e *SendError) Error() string {
	return e.Channel + " send failed: " + e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
	TLS         string // "mandatory", "opportunistic" (default) or "none"
	Timeout     time.Duration
}

// SMTPMailer delivers mail through an SMTP relay, one connection per message.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.FromAddress); err != nil {
		return &SendError{Channel: "email", Err: fmt.Errorf("invalid from address: %w", err)}
	}
	if err := msg.To(e.To); err != nil {
		return &SendError{Channel: "email", Err: fmt.Errorf("invalid recipient: %w", err)}
	}
	msg.Subject(e.Subject)
	msg.SetBodyString(mail.TypeTextPlain, e.Text)
	if e.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, e.HTML)
	}

	client, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return &SendError{Channel: "email", Err: fmt.Errorf("smtp client: %w", err)}
	}
	start := time.Now()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Debug("smtp send failed", "host", m.cfg.Host, "to", e.To, "error", err)
		return &SendError{Channel: "email", Err: err}
	}
	m.logger.Debug("smtp send ok", "host", m.cfg.Host, "to", e.To, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(m.cfg.TLS)),
	}
	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

func tlsPolicy(s string) mail.TLSPolicy {
	switch strings.ToLower(s) {
	case "mandatory":
		return mail.TLSMandatory
	case "none", "off":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}
