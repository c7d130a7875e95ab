package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wealthvault/backend/internal/db"
	"github.com/wealthvault/backend/internal/models"
	"gorm.io/datatypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return New(conn)
}

func TestUpsertUserByExternalID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertUserByExternalID(ctx, "sub-1", "a@example.com", "Ann")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := s.UpsertUserByExternalID(ctx, "sub-1", "ann@example.com", "Ann B")
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same user id, got %d and %d", first.ID, second.ID)
	}
	if second.Email != "ann@example.com" || second.Name != "Ann B" {
		t.Fatalf("profile not refreshed: %+v", second)
	}
	if _, errEmpty := s.UpsertUserByExternalID(ctx, " ", "", ""); errEmpty == nil {
		t.Fatalf("expected error for empty external id")
	}
}

func TestSetUserPlan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, err := s.UpsertUserByExternalID(ctx, "sub-plan", "p@example.com", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if user.Plan != "free" {
		t.Fatalf("expected free plan for new user, got %q", user.Plan)
	}
	if errSet := s.SetUserPlan(ctx, user.ID, " Premium "); errSet != nil {
		t.Fatalf("set plan: %v", errSet)
	}
	again, _ := s.UpsertUserByExternalID(ctx, "sub-plan", "p@example.com", "")
	if again.Plan != "premium" {
		t.Fatalf("expected plan to survive upsert, got %q", again.Plan)
	}
	if errMissing := s.SetUserPlan(ctx, 9999, "premium"); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
}

func TestTouchActivityOnlyMovesForward(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, err := s.UpsertUserByExternalID(ctx, "sub-2", "b@example.com", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	past := user.LastActivity.Add(-48 * time.Hour)
	if errTouch := s.TouchActivity(ctx, user.ID, past); errTouch != nil {
		t.Fatalf("touch: %v", errTouch)
	}
	reloaded, _ := s.GetUser(ctx, user.ID)
	if reloaded.LastActivity.Before(user.LastActivity.Add(-time.Second)) {
		t.Fatalf("last activity moved backwards: %v -> %v", user.LastActivity, reloaded.LastActivity)
	}

	future := user.LastActivity.Add(time.Hour)
	if errTouch := s.TouchActivity(ctx, user.ID, future); errTouch != nil {
		t.Fatalf("touch: %v", errTouch)
	}
	reloaded, _ = s.GetUser(ctx, user.ID)
	if !reloaded.LastActivity.Equal(future.UTC()) {
		t.Fatalf("last activity = %v, want %v", reloaded.LastActivity, future.UTC())
	}
}

func TestUpsertSnapshotOverwritesSameDate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, _ := s.UpsertUserByExternalID(ctx, "sub-3", "c@example.com", "")

	snap := &models.NetWorthSnapshot{
		UserID:             user.ID,
		SnapshotDate:       "2026-01-31",
		Currency:           "USD",
		TotalAssets:        100,
		NetWorth:           100,
		AssetBreakdown:     datatypes.JSON(`{"bank":100}`),
		LiabilityBreakdown: datatypes.JSON(`{}`),
	}
	if err := s.UpsertSnapshot(ctx, snap); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	again := &models.NetWorthSnapshot{
		UserID:             user.ID,
		SnapshotDate:       "2026-01-31",
		Currency:           "USD",
		TotalAssets:        250,
		TotalLiabilities:   50,
		NetWorth:           200,
		AssetBreakdown:     datatypes.JSON(`{"bank":250}`),
		LiabilityBreakdown: datatypes.JSON(`{"loan":50}`),
	}
	if err := s.UpsertSnapshot(ctx, again); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	rows, err := s.ListSnapshots(ctx, user.ID, "", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(rows))
	}
	if rows[0].NetWorth != 200 || rows[0].TotalLiabilities != 50 {
		t.Fatalf("snapshot not overwritten: %+v", rows[0])
	}

	if errNext := s.UpsertSnapshot(ctx, &models.NetWorthSnapshot{
		UserID: user.ID, SnapshotDate: "2026-02-01", Currency: "USD",
		AssetBreakdown: datatypes.JSON(`{}`), LiabilityBreakdown: datatypes.JSON(`{}`),
	}); errNext != nil {
		t.Fatalf("upsert next day: %v", errNext)
	}
	ranged, _ := s.ListSnapshots(ctx, user.ID, "2026-02-01", "")
	if len(ranged) != 1 || ranged[0].SnapshotDate != "2026-02-01" {
		t.Fatalf("unexpected ranged result: %+v", ranged)
	}
}

func TestUpdateMessageRequiresExpectedStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, _ := s.UpsertUserByExternalID(ctx, "sub-4", "d@example.com", "")

	msg := &models.ScheduledMessage{
		UserID:         user.ID,
		RecipientEmail: "r@example.com",
		Subject:        "hi",
		Body:           "body",
		SendDate:       time.Now().UTC().Add(-time.Hour),
		Status:         models.MessageStatusScheduled,
	}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := s.UpdateMessage(ctx, msg.ID, models.MessageStatusFailed, map[string]any{"status": models.MessageStatusScheduled})
	if err != nil || ok {
		t.Fatalf("expected no update for wrong status, ok=%v err=%v", ok, err)
	}
	ok, err = s.UpdateMessage(ctx, msg.ID, models.MessageStatusScheduled, map[string]any{"status": models.MessageStatusSent})
	if err != nil || !ok {
		t.Fatalf("expected update, ok=%v err=%v", ok, err)
	}
	got, _ := s.GetMessage(ctx, msg.ID)
	if got.Status != models.MessageStatusSent {
		t.Fatalf("status = %s, want sent", got.Status)
	}
}

func TestListDueMessagesAndRetryable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, _ := s.UpsertUserByExternalID(ctx, "sub-5", "e@example.com", "")
	now := time.Now().UTC()

	rows := []models.ScheduledMessage{
		{Status: models.MessageStatusScheduled, SendDate: now.Add(-24 * time.Hour)},
		{Status: models.MessageStatusScheduled, SendDate: now.Add(72 * time.Hour)},
		{Status: models.MessageStatusFailed, SendDate: now.Add(-24 * time.Hour), RetryCount: 1},
		{Status: models.MessageStatusFailed, SendDate: now.Add(-24 * time.Hour), RetryCount: models.MaxMessageRetries},
	}
	for i := range rows {
		rows[i].UserID = user.ID
		rows[i].RecipientEmail = "r@example.com"
		rows[i].Subject = "s"
		rows[i].Body = "b"
		if err := s.CreateMessage(ctx, &rows[i]); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	due, err := s.ListDueMessages(ctx, now, 0, 0)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != rows[0].ID {
		t.Fatalf("unexpected due messages: %+v", due)
	}
	failed, err := s.ListRetryableFailed(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != rows[2].ID {
		t.Fatalf("unexpected retryable messages: %+v", failed)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, _ := s.UpsertUserByExternalID(ctx, "sub-6", "f@example.com", "")

	total := 10.0
	asset := &models.Asset{UserID: user.ID, Type: models.AssetTypePortfolio, Name: "Broker", Currency: "USD", TotalValue: &total}
	if err := s.CreateAsset(ctx, asset); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if err := s.DB().Create(&models.PortfolioHolding{AssetID: asset.ID, Symbol: "AAA", Quantity: 1, CurrentPrice: 10}).Error; err != nil {
		t.Fatalf("create holding: %v", err)
	}
	if err := s.SaveSwitch(ctx, &models.DeadManSwitch{UserID: user.ID, InactivityDays: 90, IsActive: true, LastReset: time.Now().UTC()}); err != nil {
		t.Fatalf("save switch: %v", err)
	}
	if err := s.SaveNominee(ctx, &models.Nominee{UserID: user.ID, Name: "N", Email: "n@example.com", IsActive: true}); err != nil {
		t.Fatalf("save nominee: %v", err)
	}

	if err := s.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetUser(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var holdings int64
	s.DB().Model(&models.PortfolioHolding{}).Count(&holdings)
	if holdings != 0 {
		t.Fatalf("expected holdings removed, got %d", holdings)
	}
	if _, err := s.GetSwitch(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected switch removed, got %v", err)
	}
	if err := s.DeleteUser(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
