package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	log "github.com/sirupsen/logrus"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGridSender delivers plain-text mail through the SendGrid v3 API.
type SendGridSender struct {
	client   *sendgrid.Client
	from     string
	fromName string
	timeout  time.Duration
}

// NewSendGridSender constructs a SendGridSender against the public API host.
func NewSendGridSender(apiKey, from, fromName string, timeout time.Duration) *SendGridSender {
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     strings.TrimSpace(from),
		fromName: strings.TrimSpace(fromName),
		timeout:  timeout,
	}
}

func newSendGridSenderWithHost(apiKey, host, from, fromName string, timeout time.Duration) *SendGridSender {
	return &SendGridSender{
		client:   &sendgrid.Client{Request: sendgrid.GetRequest(apiKey, sendGridEndpoint, host)},
		from:     from,
		fromName: fromName,
		timeout:  timeout,
	}
}

// Send delivers msg, bounded by the sender timeout.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid sender not initialized")
	}
	if errValidate := msg.validate(); errValidate != nil {
		return errValidate
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail(msg.ToName, strings.TrimSpace(msg.ToEmail))
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "")

	trackingSettings := mail.NewTrackingSettings()
	clickTracking := mail.NewClickTrackingSetting()
	clickTracking.SetEnable(false)
	clickTracking.SetEnableText(false)
	trackingSettings.SetClickTracking(clickTracking)
	openTracking := mail.NewOpenTrackingSetting()
	openTracking.SetEnable(false)
	trackingSettings.SetOpenTracking(openTracking)
	m.SetTrackingSettings(trackingSettings)

	response, errSend := s.client.SendWithContext(ctx, m)
	if errSend != nil {
		return fmt.Errorf("notify: sendgrid request: %w", errSend)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("notify: sendgrid status %d: %s", response.StatusCode, strings.TrimSpace(response.Body))
	}

	var messageID string
	if ids, ok := response.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	log.WithFields(log.Fields{
		"message_id": messageID,
		"to":         msg.ToEmail,
	}).Debug("notify: sendgrid accepted message")
	return nil
}
