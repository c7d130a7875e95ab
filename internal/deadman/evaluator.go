// Package deadman evaluates dead man switches and alerts nominees after prolonged inactivity.
package deadman

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/metrics"
	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/notify"
)

// ReminderMode selects how many reminders precede a trigger.
type ReminderMode string

const (
	// ModeSingle sends one reminder LeadDays before the trigger.
	ModeSingle ReminderMode = "single"
	// ModeTiered sends up to three reminders at reminder_k_days before the trigger.
	ModeTiered ReminderMode = "tiered"
)

const (
	defaultLeadDays       = 7
	defaultInactivityDays = 90
	defaultBatchSize      = 200
	day                   = 24 * time.Hour
)

// Repository is the storage surface used by the evaluator.
type Repository interface {
	ListActiveSwitches(ctx context.Context, afterID uint64, limit int) ([]models.DeadManSwitch, error)
	UsersByID(ctx context.Context, ids []uint64) (map[uint64]models.User, error)
	GetActiveNominee(ctx context.Context, userID uint64) (*models.Nominee, error)
	UpdateSwitch(ctx context.Context, id uint64, updates map[string]any) (bool, error)
	GetSwitch(ctx context.Context, userID uint64) (models.DeadManSwitch, error)
	SaveSwitch(ctx context.Context, sw *models.DeadManSwitch) error
	SaveNominee(ctx context.Context, n *models.Nominee) error
}

// Options configures an Evaluator.
type Options struct {
	Mode      ReminderMode
	LeadDays  int
	BatchSize int
	Now       func() time.Time
	Metrics   *metrics.Metrics
}

// Outcome is the transition applied to a single switch.
type Outcome string

// Outcome values.
const (
	OutcomeNone      Outcome = "none"
	OutcomeReminder  Outcome = "reminder"
	OutcomeTriggered Outcome = "triggered"
)

// RunResult summarizes one RunCheck pass.
type RunResult struct {
	Checked   int `json:"checked"`
	Reminders int `json:"reminders"`
	Triggered int `json:"triggered"`
	Errors    int `json:"errors"`
}

// Evaluator applies the inactivity state machine to every active switch.
type Evaluator struct {
	repo      Repository
	sender    notify.Sender
	mode      ReminderMode
	leadDays  int
	batchSize int
	now       func() time.Time
	metrics   *metrics.Metrics
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(repo Repository, sender notify.Sender, opts Options) *Evaluator {
	mode := ReminderMode(strings.ToLower(strings.TrimSpace(string(opts.Mode))))
	if mode != ModeTiered {
		mode = ModeSingle
	}
	if opts.LeadDays <= 0 {
		opts.LeadDays = defaultLeadDays
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Evaluator{
		repo:      repo,
		sender:    sender,
		mode:      mode,
		leadDays:  opts.LeadDays,
		batchSize: opts.BatchSize,
		now:       opts.Now,
		metrics:   opts.Metrics,
	}
}

// RunCheck evaluates every active switch once. Per-switch failures are logged and counted;
// only listing failures and cancellation are returned.
func (e *Evaluator) RunCheck(ctx context.Context) (RunResult, error) {
	var result RunResult
	if e == nil || e.repo == nil {
		return result, fmt.Errorf("deadman: evaluator not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var afterID uint64
	for {
		batch, errList := e.repo.ListActiveSwitches(ctx, afterID, e.batchSize)
		if errList != nil {
			return result, fmt.Errorf("deadman: list switches: %w", errList)
		}
		if len(batch) == 0 {
			return result, nil
		}

		ids := make([]uint64, 0, len(batch))
		for _, sw := range batch {
			ids = append(ids, sw.UserID)
		}
		users, errUsers := e.repo.UsersByID(ctx, ids)
		if errUsers != nil {
			return result, fmt.Errorf("deadman: load users: %w", errUsers)
		}

		for _, sw := range batch {
			if errCtx := ctx.Err(); errCtx != nil {
				return result, errCtx
			}
			afterID = sw.ID
			result.Checked++

			user, ok := users[sw.UserID]
			if !ok {
				result.Errors++
				log.WithField("switch_id", sw.ID).Warn("deadman: switch owner not found")
				continue
			}
			outcome, errEval := e.Evaluate(ctx, sw, user)
			if errEval != nil {
				result.Errors++
				e.metrics.SwitchEvent("error")
				log.WithError(errEval).WithFields(log.Fields{
					"switch_id": sw.ID,
					"user_id":   sw.UserID,
				}).Warn("deadman: evaluate switch failed")
				continue
			}
			switch outcome {
			case OutcomeReminder:
				result.Reminders++
			case OutcomeTriggered:
				result.Triggered++
			}
		}
		if len(batch) < e.batchSize {
			return result, nil
		}
	}
}

// Evaluate applies at most one transition to sw. A failed delivery leaves the switch unchanged
// so the next run retries it.
func (e *Evaluator) Evaluate(ctx context.Context, sw models.DeadManSwitch, user models.User) (Outcome, error) {
	if !sw.IsActive {
		return OutcomeNone, nil
	}
	now := e.now().UTC()
	threshold := sw.InactivityDays
	if threshold <= 0 {
		threshold = defaultInactivityDays
	}
	inactive := DaysInactive(user, sw, now)

	if inactive >= threshold {
		return e.trigger(ctx, sw, user, inactive, threshold, now)
	}

	tier, due := e.dueReminder(sw, inactive, threshold)
	if !due {
		return OutcomeNone, nil
	}
	data := notify.ReminderData{
		Name:           user.DisplayName(),
		DaysInactive:   inactive,
		InactivityDays: threshold,
		DaysRemaining:  threshold - inactive,
	}
	if e.mode == ModeTiered {
		data.Tier = tier
	}
	msg, errRender := notify.ReminderMessage(user.DisplayName(), user.Email, data)
	if errRender != nil {
		return OutcomeNone, errRender
	}
	if errSend := e.send(ctx, msg); errSend != nil {
		return OutcomeNone, fmt.Errorf("deadman: send reminder: %w", errSend)
	}
	ok, errUpdate := e.repo.UpdateSwitch(ctx, sw.ID, map[string]any{
		"reminders_sent":   tier,
		"last_reminder_at": now,
	})
	if errUpdate != nil {
		return OutcomeNone, errUpdate
	}
	if !ok {
		return OutcomeNone, fmt.Errorf("deadman: switch %d changed during reminder", sw.ID)
	}
	e.metrics.SwitchEvent("reminder")
	log.WithFields(log.Fields{
		"user_id":       sw.UserID,
		"days_inactive": inactive,
		"tier":          tier,
	}).Info("deadman: reminder sent")
	return OutcomeReminder, nil
}

// dueReminder returns the reminder count the switch should reach and whether a reminder is due.
func (e *Evaluator) dueReminder(sw models.DeadManSwitch, inactive, threshold int) (int, bool) {
	if e.mode != ModeTiered {
		if sw.RemindersSent == 0 && inactive >= threshold-e.leadDays {
			return 1, true
		}
		return 0, false
	}
	highest := 0
	for i, lead := range []int{sw.Reminder1Days, sw.Reminder2Days, sw.Reminder3Days} {
		if lead <= 0 {
			continue
		}
		if inactive >= threshold-lead {
			highest = i + 1
		}
	}
	if highest > sw.RemindersSent {
		return highest, true
	}
	return 0, false
}

func (e *Evaluator) trigger(ctx context.Context, sw models.DeadManSwitch, user models.User, inactive, threshold int, now time.Time) (Outcome, error) {
	nominee, errNominee := e.repo.GetActiveNominee(ctx, sw.UserID)
	if errNominee != nil {
		return OutcomeNone, errNominee
	}
	if nominee != nil {
		msg, errRender := notify.AlertMessage(nominee.Name, nominee.Email, notify.AlertData{
			NomineeName:    nominee.Name,
			Relationship:   nominee.Relationship,
			OwnerName:      user.DisplayName(),
			OwnerEmail:     user.Email,
			DaysInactive:   inactive,
			InactivityDays: threshold,
			TriggeredAt:    now,
		})
		if errRender != nil {
			return OutcomeNone, errRender
		}
		if errSend := e.send(ctx, msg); errSend != nil {
			return OutcomeNone, fmt.Errorf("deadman: send nominee alert: %w", errSend)
		}
	} else {
		log.WithField("user_id", sw.UserID).Warn("deadman: switch triggered without an active nominee")
	}

	ok, errUpdate := e.repo.UpdateSwitch(ctx, sw.ID, map[string]any{
		"is_active":    false,
		"triggered_at": now,
	})
	if errUpdate != nil {
		return OutcomeNone, errUpdate
	}
	if !ok {
		return OutcomeNone, fmt.Errorf("deadman: switch %d changed during trigger", sw.ID)
	}
	e.metrics.SwitchEvent("triggered")
	log.WithFields(log.Fields{
		"user_id":       sw.UserID,
		"days_inactive": inactive,
		"nominee":       nominee != nil,
	}).Info("deadman: switch triggered")
	return OutcomeTriggered, nil
}

func (e *Evaluator) send(ctx context.Context, msg notify.Message) error {
	if e.sender == nil {
		return errors.New("deadman: no sender configured")
	}
	return e.sender.Send(ctx, msg)
}

// DaysInactive returns whole days since the user's last activity, falling back to the last reset
// and then the switch creation time when no activity was recorded.
func DaysInactive(user models.User, sw models.DeadManSwitch, now time.Time) int {
	ref := user.LastActivity
	if ref.IsZero() {
		ref = sw.LastReset
	}
	if ref.IsZero() {
		ref = sw.CreatedAt
	}
	if ref.IsZero() || !now.After(ref) {
		return 0
	}
	return int(now.Sub(ref) / day)
}
