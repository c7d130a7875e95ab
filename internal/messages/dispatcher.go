// Package messages delivers scheduled messages with a bounded retry budget.
package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/metrics"
	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/notify"
)

const (
	defaultBatchSize = 200
	maxErrorLength   = 1000
)

// Repository is the storage surface used by the dispatcher.
type Repository interface {
	ListDueMessages(ctx context.Context, before time.Time, afterID uint64, limit int) ([]models.ScheduledMessage, error)
	ListRetryableFailed(ctx context.Context, afterID uint64, limit int) ([]models.ScheduledMessage, error)
	UpdateMessage(ctx context.Context, id uint64, expected models.MessageStatus, updates map[string]any) (bool, error)
	CreateMessage(ctx context.Context, msg *models.ScheduledMessage) error
}

// DispatchResult summarizes one RunDispatch pass.
type DispatchResult struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
	Errors  int `json:"errors"`
}

// SweepResult summarizes one RunRetrySweep pass.
type SweepResult struct {
	Requeued int `json:"requeued"`
	Errors   int `json:"errors"`
}

// Options configures a Dispatcher.
type Options struct {
	BatchSize int
	Now       func() time.Time
	Metrics   *metrics.Metrics
}

// Dispatcher moves scheduled messages to sent or failed.
type Dispatcher struct {
	repo      Repository
	sender    notify.Sender
	batchSize int
	now       func() time.Time
	metrics   *metrics.Metrics
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(repo Repository, sender notify.Sender, opts Options) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		repo:      repo,
		sender:    sender,
		batchSize: opts.BatchSize,
		now:       opts.Now,
		metrics:   opts.Metrics,
	}
}

// dueBefore is the start of the day after now, so every message dated today or earlier is due.
func dueBefore(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// RunDispatch attempts delivery of every scheduled message whose send date is today or earlier.
func (d *Dispatcher) RunDispatch(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult
	if d == nil || d.repo == nil {
		return result, fmt.Errorf("messages: dispatcher not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	before := dueBefore(d.now())

	var afterID uint64
	for {
		batch, errList := d.repo.ListDueMessages(ctx, before, afterID, d.batchSize)
		if errList != nil {
			return result, fmt.Errorf("messages: list due: %w", errList)
		}
		for _, msg := range batch {
			if errCtx := ctx.Err(); errCtx != nil {
				return result, errCtx
			}
			afterID = msg.ID
			result.Due++
			status, errDeliver := d.Deliver(ctx, msg)
			if errDeliver != nil {
				result.Errors++
				log.WithError(errDeliver).WithField("message_id", msg.ID).Warn("messages: record delivery outcome failed")
				continue
			}
			switch status {
			case models.MessageStatusSent:
				result.Sent++
			case models.MessageStatusFailed:
				result.Failed++
			case models.MessageStatusScheduled:
				result.Retried++
			}
		}
		if len(batch) < d.batchSize {
			return result, nil
		}
	}
}

// Deliver attempts one delivery and records the outcome. It returns the message's new status.
// Delivery failures are recorded on the message and are not returned as errors.
func (d *Dispatcher) Deliver(ctx context.Context, msg models.ScheduledMessage) (models.MessageStatus, error) {
	now := d.now().UTC()
	errSend := d.send(ctx, msg)
	if errSend == nil {
		ok, errUpdate := d.repo.UpdateMessage(ctx, msg.ID, models.MessageStatusScheduled, map[string]any{
			"status":     models.MessageStatusSent,
			"sent_at":    now,
			"last_error": "",
		})
		if errUpdate != nil {
			return msg.Status, errUpdate
		}
		if !ok {
			return msg.Status, fmt.Errorf("messages: message %d changed during delivery", msg.ID)
		}
		d.metrics.MessageOutcome("sent")
		log.WithFields(log.Fields{"message_id": msg.ID, "user_id": msg.UserID}).Info("messages: delivered")
		return models.MessageStatusSent, nil
	}

	if errors.Is(errSend, context.Canceled) || errors.Is(errSend, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return msg.Status, ctx.Err()
		}
	}

	attempts := msg.RetryCount + 1
	if attempts > models.MaxMessageRetries {
		attempts = models.MaxMessageRetries
	}
	updates := map[string]any{
		"retry_count": attempts,
		"last_error":  truncate(errSend.Error(), maxErrorLength),
	}
	next := models.MessageStatusScheduled
	if attempts >= models.MaxMessageRetries {
		next = models.MessageStatusFailed
		updates["status"] = models.MessageStatusFailed
		updates["failed_at"] = now
	}
	ok, errUpdate := d.repo.UpdateMessage(ctx, msg.ID, models.MessageStatusScheduled, updates)
	if errUpdate != nil {
		return msg.Status, errUpdate
	}
	if !ok {
		return msg.Status, fmt.Errorf("messages: message %d changed during delivery", msg.ID)
	}

	fields := log.Fields{"message_id": msg.ID, "user_id": msg.UserID, "retry_count": attempts}
	if next == models.MessageStatusFailed {
		d.metrics.MessageOutcome("failed")
		log.WithError(errSend).WithFields(fields).Error("messages: delivery failed, retry budget exhausted")
	} else {
		d.metrics.MessageOutcome("retry")
		log.WithError(errSend).WithFields(fields).Warn("messages: delivery failed, will retry")
	}
	return next, nil
}

func (d *Dispatcher) send(ctx context.Context, msg models.ScheduledMessage) error {
	if d.sender == nil {
		return errors.New("messages: no sender configured")
	}
	return d.sender.Send(ctx, notify.Message{
		ToName:  msg.RecipientName,
		ToEmail: msg.RecipientEmail,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
}

// RunRetrySweep returns failed messages that still have retry budget to the scheduled state.
func (d *Dispatcher) RunRetrySweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if d == nil || d.repo == nil {
		return result, fmt.Errorf("messages: dispatcher not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var afterID uint64
	for {
		batch, errList := d.repo.ListRetryableFailed(ctx, afterID, d.batchSize)
		if errList != nil {
			return result, fmt.Errorf("messages: list failed: %w", errList)
		}
		for _, msg := range batch {
			if errCtx := ctx.Err(); errCtx != nil {
				return result, errCtx
			}
			afterID = msg.ID
			ok, errUpdate := d.repo.UpdateMessage(ctx, msg.ID, models.MessageStatusFailed, map[string]any{
				"status":    models.MessageStatusScheduled,
				"failed_at": nil,
			})
			if errUpdate != nil {
				result.Errors++
				log.WithError(errUpdate).WithField("message_id", msg.ID).Warn("messages: requeue failed")
				continue
			}
			if ok {
				result.Requeued++
				d.metrics.MessageOutcome("requeued")
			}
		}
		if len(batch) < d.batchSize {
			return result, nil
		}
	}
}

// truncate cuts s to at most n bytes on a rune boundary and drops invalid UTF-8.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
