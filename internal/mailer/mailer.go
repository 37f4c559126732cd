// Package mailer abstracts the outbound email channel.
package mailer

import (
	"context"
	"fmt"

	mail "github.com/wneessen/go-mail"
	"github.com/zulandar/onecall/internal/config"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
	Headers map[string]string
}

// Mailer sends messages and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTP implements Mailer over an SMTP relay using go-mail.
type SMTP struct {
	cfg config.MailConfig
}

// NewSMTP creates an SMTP mailer from mail settings.
func NewSMTP(cfg config.MailConfig) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mailer: smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mailer: from address is required")
	}
	return &SMTP{cfg: cfg}, nil
}

// Send delivers one message and returns its Message-ID header.
func (s *SMTP) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("mailer: recipient is required")
	}

	m := mail.NewMsg()
	if err := m.FromFormat("Locate Request Service", s.cfg.From); err != nil {
		return "", fmt.Errorf("mailer: from %s: %w", s.cfg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return "", fmt.Errorf("mailer: to %s: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	for k, v := range msg.Headers {
		m.SetGenHeader(mail.Header(k), v)
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.User),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("mailer: client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("mailer: send to %s: %w", msg.To, err)
	}

	ids := m.GetGenHeader(mail.HeaderMessageID)
	if len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
