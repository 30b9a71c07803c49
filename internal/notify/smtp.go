package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds mail server settings. Port 465 uses implicit TLS.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // defaults to Username
	To       []string
}

// SMTPNotifier sends plain-text email.
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier validates cfg.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 465
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("smtp: sender is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("smtp: at least one recipient is required")
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

// Notify dials the server and sends one message.
func (s *SMTPNotifier) Notify(ctx context.Context, subject, body string) error {
	m, err := s.message(subject, body)
	if err != nil {
		return &NotifyError{Channel: "smtp", Err: err}
	}

	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return &NotifyError{Channel: "smtp", Err: err}
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return &NotifyError{Channel: "smtp", Err: err}
	}
	return nil
}

func (s *SMTPNotifier) message(subject, body string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", s.cfg.From, err)
	}
	if err := m.To(s.cfg.To...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}
