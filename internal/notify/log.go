package notify

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

// NewLogSender constructs a LogSender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send validates and logs the message.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if ctx != nil {
		if errCtx := ctx.Err(); errCtx != nil {
			return errCtx
		}
	}
	if errValidate := msg.validate(); errValidate != nil {
		return errValidate
	}
	log.WithFields(log.Fields{
		"message_id": uuid.NewString(),
		"to":         msg.ToEmail,
		"subject":    msg.Subject,
		"bytes":      len(msg.Body),
	}).Info("notify: message logged (log provider)")
	return nil
}
