package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wealthvault/backend/internal/config"
	"github.com/wealthvault/backend/internal/db"
	"github.com/wealthvault/backend/internal/deadman"
	"github.com/wealthvault/backend/internal/fxrates"
	"github.com/wealthvault/backend/internal/http/api/front"
	"github.com/wealthvault/backend/internal/jobs"
	"github.com/wealthvault/backend/internal/messages"
	"github.com/wealthvault/backend/internal/metrics"
	"github.com/wealthvault/backend/internal/networth"
	"github.com/wealthvault/backend/internal/notify"
	"github.com/wealthvault/backend/internal/portfolio"
	"github.com/wealthvault/backend/internal/ratelimit"
	"github.com/wealthvault/backend/internal/security"
	"github.com/wealthvault/backend/internal/store"
	"github.com/wealthvault/backend/internal/valuation"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type nopSender struct{}

func (nopSender) Send(context.Context, notify.Message) error { return nil }

type eurRates struct{}

func (eurRates) Rates(_ context.Context, base string) (fxrates.Rates, error) {
	if base != "EUR" {
		return nil, errors.New("unknown base")
	}
	return fxrates.Rates{"EUR": 1, "USD": 1.1}, nil
}

type stubRunner struct {
	ran []string
}

func (r *stubRunner) Stats() []jobs.TaskStats {
	return []jobs.TaskStats{{ID: "dms-check", Spec: "0 0 9 * * *"}}
}

func (r *stubRunner) RunNow(_ context.Context, id string) error {
	switch id {
	case "dms-check":
		r.ran = append(r.ran, id)
		return nil
	case "busy":
		return jobs.ErrTaskBusy
	default:
		return jobs.ErrTaskNotFound
	}
}

type testServer struct {
	engine *gin.Engine
	store  *store.Store
	runner *stubRunner
}

func newTestServer(t *testing.T, configure ...func(*front.Services)) *testServer {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	st := store.New(conn)
	m := metrics.New()
	converter := valuation.NewConverter(eurRates{}, m)
	aggregator := networth.NewAggregator(converter, 0, m)
	runner := &stubRunner{}
	services := front.Services{
		Store:      st,
		NetWorth:   networth.NewService(st, aggregator, converter, "USD"),
		Converter:  converter,
		Portfolio:  portfolio.NewService(conn),
		Evaluator:  deadman.NewEvaluator(st, nopSender{}, deadman.Options{Metrics: m}),
		Dispatcher: messages.NewDispatcher(st, nopSender{}, messages.Options{Metrics: m}),
	}
	for _, fn := range configure {
		fn(&services)
	}
	engine := NewRouter(Dependencies{
		DB:      conn,
		JWT:     config.JWTConfig{Secret: testSecret, Expiry: time.Hour},
		Front:   services,
		Runner:  runner,
		Metrics: m,
	})
	return &testServer{engine: engine, store: st, runner: runner}
}

func issue(t *testing.T, subject, role string) string {
	t.Helper()
	return issueWithPlan(t, subject, role, "")
}

func issueWithPlan(t *testing.T, subject, role, plan string) string {
	t.Helper()
	token, err := security.IssueToken(testSecret, security.Claims{
		Email:            subject + "@example.com",
		Name:             "User " + subject,
		Role:             role,
		Plan:             plan,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, want, rec.Body.String())
	}
}

func TestFrontRequiresToken(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(t, http.MethodGet, "/v0/front/networth", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec, _ = s.do(t, http.MethodGet, "/v0/front/networth", "not-a-jwt", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestAuthenticatedRequestCreatesUserAndTouchesActivity(t *testing.T) {
	s := newTestServer(t)
	before := time.Now().UTC().Add(-time.Second)
	rec, _ := s.do(t, http.MethodGet, "/v0/front/assets", issue(t, "sub-1", ""), nil)
	expectStatus(t, rec, http.StatusOK)

	user, err := s.store.UpsertUserByExternalID(context.Background(), "sub-1", "sub-1@example.com", "")
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.LastActivity.Before(before) {
		t.Fatalf("last activity not touched: %v", user.LastActivity)
	}
}

func TestNetWorthAndSnapshots(t *testing.T) {
	s := newTestServer(t)
	token := issue(t, "sub-nw", "")

	rec, _ := s.do(t, http.MethodPost, "/v0/front/assets", token, map[string]any{
		"type": "bank", "name": "Checking", "currency": "usd", "total_value": 1000,
	})
	expectStatus(t, rec, http.StatusCreated)
	rec, _ = s.do(t, http.MethodPost, "/v0/front/assets", token, map[string]any{
		"type": "loan", "name": "Car", "currency": "USD", "outstanding_balance": 400,
	})
	expectStatus(t, rec, http.StatusCreated)
	rec, _ = s.do(t, http.MethodPost, "/v0/front/assets", token, map[string]any{
		"type": "spaceship", "name": "x", "currency": "USD",
	})
	expectStatus(t, rec, http.StatusBadRequest)

	rec, body := s.do(t, http.MethodGet, "/v0/front/networth", token, nil)
	expectStatus(t, rec, http.StatusOK)
	if body["net_worth"] != float64(600) {
		t.Fatalf("net_worth = %v", body["net_worth"])
	}
	validation, _ := body["validation"].(map[string]any)
	if validation["consistent"] != true {
		t.Fatalf("expected consistent validation, got %v", validation)
	}

	for i := 0; i < 2; i++ {
		rec, _ = s.do(t, http.MethodPost, "/v0/front/networth/snapshots", token, map[string]any{"date": "2026-01-15"})
		expectStatus(t, rec, http.StatusOK)
	}
	rec, body = s.do(t, http.MethodGet, "/v0/front/networth/history?currency=USD", token, nil)
	expectStatus(t, rec, http.StatusOK)
	history, _ := body["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("expected one snapshot for the date, got %d", len(history))
	}

	rec, _ = s.do(t, http.MethodPost, "/v0/front/networth/snapshots", token, map[string]any{"date": "15/01/2026"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestConvertEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := issue(t, "sub-fx", "")

	rec, body := s.do(t, http.MethodGet, "/v0/front/convert?amount=100&from=eur&to=usd", token, nil)
	expectStatus(t, rec, http.StatusOK)
	amount, _ := body["amount"].(float64)
	if body["converted"] != true || amount < 109.99 || amount > 110.01 {
		t.Fatalf("unexpected conversion: %v", body)
	}

	rec, body = s.do(t, http.MethodGet, "/v0/front/convert?amount=100&from=GBP&to=USD", token, nil)
	expectStatus(t, rec, http.StatusOK)
	if body["converted"] != false || body["amount"] != float64(100) {
		t.Fatalf("expected fail-open conversion, got %v", body)
	}

	rec, _ = s.do(t, http.MethodGet, "/v0/front/convert?amount=abc&from=EUR&to=USD", token, nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestPortfolioHoldingsKeepTotal(t *testing.T) {
	s := newTestServer(t)
	token := issue(t, "sub-pf", "")

	rec, asset := s.do(t, http.MethodPost, "/v0/front/assets", token, map[string]any{
		"type": "portfolio", "name": "Brokerage", "currency": "USD",
		"current_total_value": 999, "quantity": 5, "unit_price": 10,
	})
	expectStatus(t, rec, http.StatusCreated)
	if asset["current_total_value"] != nil || asset["quantity"] != nil || asset["total_value"] != float64(0) {
		t.Fatalf("portfolio must only carry the holdings total, got %v", asset)
	}
	assetID := uint64(asset["id"].(float64))
	base := fmt.Sprintf("/v0/front/portfolios/%d/holdings", assetID)

	rec, holding := s.do(t, http.MethodPost, base, token, map[string]any{"symbol": "ACME", "quantity": 2, "current_price": 50})
	expectStatus(t, rec, http.StatusCreated)
	holdingID := uint64(holding["id"].(float64))
	rec, _ = s.do(t, http.MethodPost, base, token, map[string]any{"symbol": "", "quantity": 1})
	expectStatus(t, rec, http.StatusBadRequest)

	rec, got := s.do(t, http.MethodGet, fmt.Sprintf("/v0/front/assets/%d", assetID), token, nil)
	expectStatus(t, rec, http.StatusOK)
	if got["total_value"] != float64(100) {
		t.Fatalf("total_value = %v", got["total_value"])
	}

	rec, _ = s.do(t, http.MethodPut, fmt.Sprintf("%s/%d", base, holdingID), token, map[string]any{"symbol": "ACME", "quantity": 3, "current_price": 50})
	expectStatus(t, rec, http.StatusOK)
	_, got = s.do(t, http.MethodGet, fmt.Sprintf("/v0/front/assets/%d", assetID), token, nil)
	if got["total_value"] != float64(150) {
		t.Fatalf("total_value after update = %v", got["total_value"])
	}

	rec, _ = s.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, holdingID), token, nil)
	expectStatus(t, rec, http.StatusOK)
	_, got = s.do(t, http.MethodGet, fmt.Sprintf("/v0/front/assets/%d", assetID), token, nil)
	if got["total_value"] != float64(0) {
		t.Fatalf("total_value after delete = %v", got["total_value"])
	}
	rec, summary := s.do(t, http.MethodGet, "/v0/front/networth", token, nil)
	expectStatus(t, rec, http.StatusOK)
	if summary["net_worth"] != float64(0) {
		t.Fatalf("emptied portfolio must be worth 0, got %v", summary["net_worth"])
	}

	rec, _ = s.do(t, http.MethodGet, base, issue(t, "sub-other", ""), nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestDeadManSwitchEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := issue(t, "sub-dms", "")

	rec, _ := s.do(t, http.MethodGet, "/v0/front/dead-man-switch", token, nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec, _ = s.do(t, http.MethodPost, "/v0/front/dead-man-switch/reset", token, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec, _ = s.do(t, http.MethodPut, "/v0/front/dead-man-switch", token, map[string]any{"inactivity_days": 5, "reminder_1_days": 9})
	expectStatus(t, rec, http.StatusBadRequest)
	rec, body := s.do(t, http.MethodPut, "/v0/front/dead-man-switch", token, map[string]any{"inactivity_days": 60})
	expectStatus(t, rec, http.StatusOK)
	if body["is_active"] != true || body["inactivity_days"] != float64(60) {
		t.Fatalf("unexpected switch: %v", body)
	}

	rec, _ = s.do(t, http.MethodPut, "/v0/front/nominee", token, map[string]any{"name": "Heir", "email": "not-an-email"})
	expectStatus(t, rec, http.StatusBadRequest)
	rec, _ = s.do(t, http.MethodPut, "/v0/front/nominee", token, map[string]any{"name": "Heir", "email": "heir@example.com", "relationship": "child"})
	expectStatus(t, rec, http.StatusOK)

	rec, body = s.do(t, http.MethodGet, "/v0/front/dead-man-switch", token, nil)
	expectStatus(t, rec, http.StatusOK)
	if body["days_remaining"] != float64(60) {
		t.Fatalf("days_remaining = %v", body["days_remaining"])
	}
	nominee, _ := body["nominee"].(map[string]any)
	if nominee["email"] != "heir@example.com" {
		t.Fatalf("nominee = %v", body["nominee"])
	}

	rec, body = s.do(t, http.MethodPost, "/v0/front/dead-man-switch/reset", token, nil)
	expectStatus(t, rec, http.StatusOK)
	if body["reminders_sent"] != float64(0) {
		t.Fatalf("reminders_sent = %v", body["reminders_sent"])
	}
}

func TestMessageEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := issue(t, "sub-msg", "")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	rec, body := s.do(t, http.MethodPost, "/v0/front/messages", token, map[string]any{
		"recipient_name": "Friend", "recipient_email": "friend@example.com",
		"subject": "later", "body": "hello", "send_date": tomorrow,
	})
	expectStatus(t, rec, http.StatusCreated)
	if body["status"] != "scheduled" || body["retry_count"] != float64(0) {
		t.Fatalf("unexpected message: %v", body)
	}

	rec, _ = s.do(t, http.MethodPost, "/v0/front/messages", token, map[string]any{
		"recipient_email": "friend@example.com", "subject": "past", "body": "x", "send_date": "2001-01-01",
	})
	expectStatus(t, rec, http.StatusBadRequest)

	rec, body = s.do(t, http.MethodGet, "/v0/front/messages", token, nil)
	expectStatus(t, rec, http.StatusOK)
	if list, _ := body["messages"].([]any); len(list) != 1 {
		t.Fatalf("expected one message, got %v", body["messages"])
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	userToken := issue(t, "sub-user", "")
	adminToken := issue(t, "sub-admin", security.RoleAdmin)

	rec, _ := s.do(t, http.MethodGet, "/v0/admin/jobs", userToken, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec, body := s.do(t, http.MethodGet, "/v0/admin/jobs", adminToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if list, _ := body["jobs"].([]any); len(list) != 1 {
		t.Fatalf("unexpected jobs: %v", body)
	}

	rec, _ = s.do(t, http.MethodPost, "/v0/admin/jobs/dms-check/run", adminToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if len(s.runner.ran) != 1 {
		t.Fatalf("expected one manual run, got %v", s.runner.ran)
	}
	rec, _ = s.do(t, http.MethodPost, "/v0/admin/jobs/busy/run", adminToken, nil)
	expectStatus(t, rec, http.StatusConflict)
	rec, _ = s.do(t, http.MethodPost, "/v0/admin/jobs/unknown/run", adminToken, nil)
	expectStatus(t, rec, http.StatusNotFound)

	user, err := s.store.UpsertUserByExternalID(context.Background(), "sub-user", "sub-user@example.com", "")
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	rec, _ = s.do(t, http.MethodPut, fmt.Sprintf("/v0/admin/users/%d/plan", user.ID), adminToken, map[string]string{"plan": "Premium"})
	expectStatus(t, rec, http.StatusOK)
	rec, body = s.do(t, http.MethodGet, fmt.Sprintf("/v0/admin/users/%d", user.ID), adminToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if body["plan"] != "premium" {
		t.Fatalf("expected premium plan, got %v", body["plan"])
	}
	rec, _ = s.do(t, http.MethodPut, fmt.Sprintf("/v0/admin/users/%d/plan", user.ID), adminToken, map[string]string{})
	expectStatus(t, rec, http.StatusBadRequest)

	rec, _ = s.do(t, http.MethodDelete, fmt.Sprintf("/v0/admin/users/%d", user.ID), adminToken, nil)
	expectStatus(t, rec, http.StatusOK)
	rec, _ = s.do(t, http.MethodGet, fmt.Sprintf("/v0/admin/users/%d", user.ID), adminToken, nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec, _ = s.do(t, http.MethodDelete, "/v0/admin/users/abc", adminToken, nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}

	rec, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `wealthvault_http_requests_total{method="GET",route="/healthz",status="200"} 1`) {
		t.Fatalf("expected request metric in exposition output")
	}
}

func TestFrontRateLimitByPlan(t *testing.T) {
	s := newTestServer(t, func(svc *front.Services) {
		svc.Limiter = ratelimit.NewManager(ratelimit.Options{Window: time.Hour})
		svc.RateLimitPolicy = ratelimit.Policy{Default: 2, Plans: map[string]int{"premium": 5}}
	})
	token := issue(t, "sub-rl", "")

	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, http.MethodGet, "/v0/front/assets", token, nil)
		expectStatus(t, rec, http.StatusOK)
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("expected limit header 2, got %q", rec.Header().Get("X-RateLimit-Limit"))
		}
	}
	rec, _ := s.do(t, http.MethodGet, "/v0/front/assets", token, nil)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	premium := issueWithPlan(t, "sub-rl-premium", "", "premium")
	for i := 0; i < 3; i++ {
		rec, _ := s.do(t, http.MethodGet, "/v0/front/assets", premium, nil)
		expectStatus(t, rec, http.StatusOK)
	}
	stored, err := s.store.UpsertUserByExternalID(context.Background(), "sub-rl-premium", "sub-rl-premium@example.com", "")
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if stored.Plan != "premium" {
		t.Fatalf("expected plan claim to be stored, got %q", stored.Plan)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected no remaining requests for throttled user, got %q", got)
	}

	// Health and admin routes are not throttled.
	for i := 0; i < 3; i++ {
		rec, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
		expectStatus(t, rec, http.StatusOK)
	}
}
