package deadman

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/store"
)

// ErrInvalidConfig is returned for thresholds that cannot form a valid schedule.
var ErrInvalidConfig = errors.New("deadman: invalid configuration")

// Settings are the user-editable thresholds of a switch. Zero reminder values take the defaults
// 7/3/1, capped below inactivity_days.
type Settings struct {
	InactivityDays int `json:"inactivity_days"`
	Reminder1Days  int `json:"reminder_1_days"`
	Reminder2Days  int `json:"reminder_2_days"`
	Reminder3Days  int `json:"reminder_3_days"`
}

func (s Settings) withDefaults() Settings {
	if s.InactivityDays == 0 {
		s.InactivityDays = defaultInactivityDays
	}
	// Default leads never reach the threshold; a lead of 0 disables that tier.
	maxLead := s.InactivityDays - 1
	if maxLead < 0 {
		maxLead = 0
	}
	if s.Reminder1Days == 0 {
		s.Reminder1Days = min(7, maxLead)
	}
	if s.Reminder2Days == 0 {
		s.Reminder2Days = min(3, maxLead)
	}
	if s.Reminder3Days == 0 {
		s.Reminder3Days = min(1, maxLead)
	}
	return s
}

func (s Settings) validate() error {
	if s.InactivityDays < 1 || s.InactivityDays > 3650 {
		return fmt.Errorf("%w: inactivity_days must be between 1 and 3650", ErrInvalidConfig)
	}
	for _, lead := range []int{s.Reminder1Days, s.Reminder2Days, s.Reminder3Days} {
		if lead < 0 || lead >= s.InactivityDays {
			return fmt.Errorf("%w: reminder days must be between 0 and inactivity_days-1", ErrInvalidConfig)
		}
	}
	return nil
}

// Configure creates or updates the user's switch and activates it.
// Reconfiguring a triggered switch re-arms it from now.
func (e *Evaluator) Configure(ctx context.Context, userID uint64, settings Settings) (models.DeadManSwitch, error) {
	if e == nil || e.repo == nil {
		return models.DeadManSwitch{}, fmt.Errorf("deadman: evaluator not initialized")
	}
	settings = settings.withDefaults()
	if errValidate := settings.validate(); errValidate != nil {
		return models.DeadManSwitch{}, errValidate
	}
	now := e.now().UTC()

	sw, errFind := e.repo.GetSwitch(ctx, userID)
	switch {
	case errors.Is(errFind, store.ErrNotFound):
		sw = models.DeadManSwitch{UserID: userID, LastReset: now}
	case errFind != nil:
		return models.DeadManSwitch{}, fmt.Errorf("deadman: load switch: %w", errFind)
	}
	if !sw.IsActive {
		sw.RemindersSent = 0
		sw.LastReminderAt = nil
		sw.TriggeredAt = nil
		sw.LastReset = now
	}
	sw.IsActive = true
	sw.InactivityDays = settings.InactivityDays
	sw.Reminder1Days = settings.Reminder1Days
	sw.Reminder2Days = settings.Reminder2Days
	sw.Reminder3Days = settings.Reminder3Days

	if errSave := e.repo.SaveSwitch(ctx, &sw); errSave != nil {
		return models.DeadManSwitch{}, errSave
	}
	return e.repo.GetSwitch(ctx, userID)
}

// Reset re-arms the user's switch: active, no reminders sent, countdown restarted.
func (e *Evaluator) Reset(ctx context.Context, userID uint64) (models.DeadManSwitch, error) {
	if e == nil || e.repo == nil {
		return models.DeadManSwitch{}, fmt.Errorf("deadman: evaluator not initialized")
	}
	sw, errFind := e.repo.GetSwitch(ctx, userID)
	if errFind != nil {
		return models.DeadManSwitch{}, errFind
	}
	sw.IsActive = true
	sw.RemindersSent = 0
	sw.LastReminderAt = nil
	sw.TriggeredAt = nil
	sw.LastReset = e.now().UTC()
	if errSave := e.repo.SaveSwitch(ctx, &sw); errSave != nil {
		return models.DeadManSwitch{}, errSave
	}
	return sw, nil
}

// NomineeInput carries the nominee fields a user can set.
type NomineeInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Relationship string `json:"relationship"`
	IsActive     *bool  `json:"is_active"`
}

// SetNominee creates or replaces the user's nominee.
func (e *Evaluator) SetNominee(ctx context.Context, userID uint64, in NomineeInput) (models.Nominee, error) {
	if e == nil || e.repo == nil {
		return models.Nominee{}, fmt.Errorf("deadman: evaluator not initialized")
	}
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" {
		return models.Nominee{}, fmt.Errorf("%w: nominee name is required", ErrInvalidConfig)
	}
	if _, errParse := mail.ParseAddress(email); errParse != nil {
		return models.Nominee{}, fmt.Errorf("%w: invalid nominee email", ErrInvalidConfig)
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	nominee := models.Nominee{
		UserID:       userID,
		Name:         name,
		Email:        email,
		Relationship: strings.TrimSpace(in.Relationship),
		IsActive:     active,
	}
	if errSave := e.repo.SaveNominee(ctx, &nominee); errSave != nil {
		return models.Nominee{}, errSave
	}
	return nominee, nil
}
