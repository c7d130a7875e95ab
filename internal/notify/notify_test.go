package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wealthvault/backend/internal/config"
)

func TestNewSelectsProvider(t *testing.T) {
	sender, err := New(config.MailConfig{Provider: "log"})
	if err != nil {
		t.Fatalf("log provider: %v", err)
	}
	if _, ok := sender.(*LogSender); !ok {
		t.Fatalf("expected *LogSender, got %T", sender)
	}
	if _, err := New(config.MailConfig{Provider: "sendgrid"}); err == nil {
		t.Fatalf("expected error without api key")
	}
	sender, err = New(config.MailConfig{Provider: "SendGrid", SendGridAPIKey: "key", From: "noreply@example.com"})
	if err != nil {
		t.Fatalf("sendgrid provider: %v", err)
	}
	if _, ok := sender.(*SendGridSender); !ok {
		t.Fatalf("expected *SendGridSender, got %T", sender)
	}
	if _, err := New(config.MailConfig{Provider: "pigeon"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestLogSenderValidatesRecipient(t *testing.T) {
	s := NewLogSender()
	if err := s.Send(context.Background(), Message{ToEmail: "not-an-address", Subject: "x"}); err == nil {
		t.Fatalf("expected invalid recipient error")
	}
	if err := s.Send(context.Background(), Message{ToEmail: "a@example.com", Subject: "x", Body: "y"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, Message{ToEmail: "a@example.com", Subject: "x"}); err == nil {
		t.Fatalf("expected cancelled context error")
	}
}

func TestSendGridSender(t *testing.T) {
	var gotAuth, gotBody string
	status := http.StatusAccepted
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("X-Message-Id", "sg-1")
		w.WriteHeader(status)
	}))
	defer server.Close()

	s := newSendGridSenderWithHost("test-key", server.URL, "noreply@example.com", "WealthVault", time.Second)
	msg := Message{ToName: "Ann", ToEmail: "ann@example.com", Subject: "Hello", Body: "Body text"}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if !strings.Contains(gotBody, "ann@example.com") || !strings.Contains(gotBody, "Body text") {
		t.Fatalf("unexpected request body: %s", gotBody)
	}

	status = http.StatusBadRequest
	if err := s.Send(context.Background(), msg); err == nil {
		t.Fatalf("expected error on non-2xx status")
	}
}

func TestTemplates(t *testing.T) {
	reminder, err := ReminderMessage("Ann", "ann@example.com", ReminderData{
		Name: "Ann", DaysInactive: 84, InactivityDays: 90, DaysRemaining: 6,
	})
	if err != nil {
		t.Fatalf("render reminder: %v", err)
	}
	if !strings.Contains(reminder.Subject, "6 days") {
		t.Fatalf("unexpected subject: %s", reminder.Subject)
	}
	if !strings.Contains(reminder.Body, "84 days") || strings.Contains(reminder.Body, "reminder 0") {
		t.Fatalf("unexpected body: %s", reminder.Body)
	}

	single, _ := ReminderMessage("Ann", "ann@example.com", ReminderData{DaysRemaining: 1, Tier: 3})
	if !strings.HasSuffix(single.Subject, "1 day") || !strings.Contains(single.Body, "reminder 3 of 3") {
		t.Fatalf("unexpected singular reminder: %q / %q", single.Subject, single.Body)
	}

	alert, err := AlertMessage("Bob", "bob@example.com", AlertData{
		NomineeName: "Bob", Relationship: "brother", OwnerName: "Ann", OwnerEmail: "ann@example.com",
		DaysInactive: 91, InactivityDays: 90, TriggeredAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("render alert: %v", err)
	}
	if alert.ToEmail != "bob@example.com" || !strings.Contains(alert.Subject, "Ann") {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if !strings.Contains(alert.Body, "ann@example.com") || !strings.Contains(alert.Body, "2026-05-01 09:00 UTC") {
		t.Fatalf("alert body missing owner identity or time: %s", alert.Body)
	}
}
