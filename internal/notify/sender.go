// Package notify delivers outgoing email through a pluggable Sender.
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/wealthvault/backend/internal/config"
)

// Message is a single outgoing email.
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Body    string
}

// Sender delivers a message or returns why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Provider names accepted by New.
const (
	ProviderLog      = "log"
	ProviderSendGrid = "sendgrid"
)

func (m Message) validate() error {
	if _, errParse := mail.ParseAddress(strings.TrimSpace(m.ToEmail)); errParse != nil {
		return fmt.Errorf("notify: invalid recipient %q: %w", m.ToEmail, errParse)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("notify: empty subject")
	}
	return nil
}

// New builds the sender selected by cfg.Provider.
func New(cfg config.MailConfig) (Sender, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderLog:
		return NewLogSender(), nil
	case ProviderSendGrid:
		if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
			return nil, fmt.Errorf("notify: sendgrid api key is required")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.From, cfg.FromName, timeout), nil
	default:
		return nil, fmt.Errorf("notify: unknown provider %q", cfg.Provider)
	}
}
