package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/firstdate-app/firstdate/internal/app/lifecycle"
	"github.com/firstdate-app/firstdate/internal/domain"
	"github.com/firstdate-app/firstdate/internal/infra/sqlite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type nopNotifier struct{}

func (nopNotifier) Publish(_ context.Context, _ string, _ interface{}) {}

type apiFixture struct {
	t       *testing.T
	handler http.Handler
	svc     *lifecycle.Service
	clock   *fakeClock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := lifecycle.New(lifecycle.DefaultConfig(), db, clock, nopNotifier{})

	srv := NewServer(svc)
	srv.EnableMetrics()
	return &apiFixture{t: t, handler: srv.Handler(), svc: svc, clock: clock}
}

func (f *apiFixture) fund(userID string, amount int64) {
	f.t.Helper()
	charge := fmt.Sprintf("chrg_%s_%d", userID, amount)
	if err := f.svc.TopUp(context.Background(), userID, charge, amount); err != nil {
		f.t.Fatalf("fund %s: %v", userID, err)
	}
}

func (f *apiFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}

func TestSendRequestCreated(t *testing.T) {
	f := newAPIFixture(t)
	f.fund("alice", 500)
	f.fund("bob", 500)

	slot := f.clock.Now().Add(72 * time.Hour)
	rec := f.do(http.MethodPost, "/api/requests", map[string]interface{}{
		"requester_id": "alice",
		"recipient_id": "bob",
		"slots":        []time.Time{slot},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var req domain.SpeedDateRequest
	decodeBody(t, rec, &req)
	if req.ID == "" {
		t.Fatal("response carries no request ID")
	}
	if req.Status != domain.RequestSent {
		t.Fatalf("status = %s, want %s", req.Status, domain.RequestSent)
	}
}

func TestSendRequestInsufficientCredits(t *testing.T) {
	f := newAPIFixture(t)
	f.fund("alice", 50) // below the 200 escrow
	f.fund("bob", 500)

	rec := f.do(http.MethodPost, "/api/requests", map[string]interface{}{
		"requester_id": "alice",
		"recipient_id": "bob",
		"slots":        []time.Time{f.clock.Now().Add(72 * time.Hour)},
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSendRequestValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"self request", map[string]interface{}{
			"requester_id": "alice",
			"recipient_id": "alice",
			"slots":        []time.Time{f.clock.Now().Add(72 * time.Hour)},
		}},
		{"no slots", map[string]interface{}{
			"requester_id": "alice",
			"recipient_id": "bob",
			"slots":        []time.Time{},
		}},
		{"malformed json", nil}, // sent below with a raw body
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.body == nil {
				req := httptest.NewRequest(http.MethodPost, "/api/requests", bytes.NewBufferString("{not json"))
				rec = httptest.NewRecorder()
				f.handler.ServeHTTP(rec, req)
			} else {
				rec = f.do(http.MethodPost, "/api/requests", tt.body)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body: %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAcceptRequestFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.fund("alice", 500)
	f.fund("bob", 500)

	slot := f.clock.Now().Add(72 * time.Hour)
	rec := f.do(http.MethodPost, "/api/requests", map[string]interface{}{
		"requester_id": "alice",
		"recipient_id": "bob",
		"slots":        []time.Time{slot},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: status = %d", rec.Code)
	}
	var req domain.SpeedDateRequest
	decodeBody(t, rec, &req)

	rec = f.do(http.MethodPost, "/api/requests/"+req.ID+"/accept", map[string]interface{}{"slot": slot})
	if rec.Code != http.StatusCreated {
		t.Fatalf("accept: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var event domain.SpeedDateEvent
	decodeBody(t, rec, &event)
	if event.State != domain.EventScheduled {
		t.Fatalf("event state = %s, want %s", event.State, domain.EventScheduled)
	}

	// Both escrows held.
	for _, user := range []string{"alice", "bob"} {
		rec = f.do(http.MethodGet, "/api/users/"+user+"/balance", nil)
		var out struct {
			Balance int64 `json:"balance"`
		}
		decodeBody(t, rec, &out)
		if out.Balance != 300 {
			t.Fatalf("%s balance = %d, want 300", user, out.Balance)
		}
	}
}

func TestDeclineRequestConflictOnRetry(t *testing.T) {
	f := newAPIFixture(t)
	f.fund("alice", 500)
	f.fund("bob", 500)

	rec := f.do(http.MethodPost, "/api/requests", map[string]interface{}{
		"requester_id": "alice",
		"recipient_id": "bob",
		"slots":        []time.Time{f.clock.Now().Add(72 * time.Hour)},
	})
	var req domain.SpeedDateRequest
	decodeBody(t, rec, &req)

	if rec := f.do(http.MethodPost, "/api/requests/"+req.ID+"/decline", nil); rec.Code != http.StatusOK {
		t.Fatalf("decline: status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/requests/"+req.ID+"/decline", nil); rec.Code != http.StatusConflict {
		t.Fatalf("second decline: status = %d, want 409", rec.Code)
	}
}

func TestCancelRequestWithdrawsAndRefunds(t *testing.T) {
	f := newAPIFixture(t)
	f.fund("alice", 500)
	f.fund("bob", 500)

	rec := f.do(http.MethodPost, "/api/requests", map[string]interface{}{
		"requester_id": "alice",
		"recipient_id": "bob",
		"slots":        []time.Time{f.clock.Now().Add(72 * time.Hour)},
	})
	var req domain.SpeedDateRequest
	decodeBody(t, rec, &req)

	if rec := f.do(http.MethodPost, "/api/requests/"+req.ID+"/cancel", map[string]string{"user_id": "bob"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("cancel by recipient: status = %d, want 400", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/requests/"+req.ID+"/cancel", map[string]string{"user_id": "alice"}); rec.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d", rec.Code)
	}
	if got, _ := f.svc.Balance("alice"); got != 500 {
		t.Errorf("alice balance = %d, want 500 after withdraw refund", got)
	}
	if rec := f.do(http.MethodPost, "/api/requests/"+req.ID+"/cancel", map[string]string{"user_id": "alice"}); rec.Code != http.StatusConflict {
		t.Fatalf("second cancel: status = %d, want 409", rec.Code)
	}
}

func TestUnknownRequestNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/requests/nope/decline", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelLockedEventConflict(t *testing.T) {
	f := newAPIFixture(t)
	f.fund("alice", 500)
	f.fund("bob", 500)

	slot := f.clock.Now().Add(72 * time.Hour)
	rec := f.do(http.MethodPost, "/api/requests", map[string]interface{}{
		"requester_id": "alice",
		"recipient_id": "bob",
		"slots":        []time.Time{slot},
	})
	var req domain.SpeedDateRequest
	decodeBody(t, rec, &req)
	rec = f.do(http.MethodPost, "/api/requests/"+req.ID+"/accept", map[string]interface{}{"slot": slot})
	var event domain.SpeedDateEvent
	decodeBody(t, rec, &event)

	// Cross the 24h lock boundary.
	f.clock.Advance(49 * time.Hour)

	rec = f.do(http.MethodPost, "/api/events/"+event.ID+"/cancel", map[string]string{"user_id": "alice"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCancelByNonParticipantForbidden(t *testing.T) {
	f := newAPIFixture(t)
	f.fund("alice", 500)
	f.fund("bob", 500)

	slot := f.clock.Now().Add(72 * time.Hour)
	rec := f.do(http.MethodPost, "/api/requests", map[string]interface{}{
		"requester_id": "alice",
		"recipient_id": "bob",
		"slots":        []time.Time{slot},
	})
	var req domain.SpeedDateRequest
	decodeBody(t, rec, &req)
	rec = f.do(http.MethodPost, "/api/requests/"+req.ID+"/accept", map[string]interface{}{"slot": slot})
	var event domain.SpeedDateEvent
	decodeBody(t, rec, &event)

	rec = f.do(http.MethodPost, "/api/events/"+event.ID+"/cancel", map[string]string{"user_id": "mallory"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestGetEventSnapshotHidesFeedback(t *testing.T) {
	f := newAPIFixture(t)
	f.fund("alice", 500)
	f.fund("bob", 500)

	slot := f.clock.Now().Add(72 * time.Hour)
	rec := f.do(http.MethodPost, "/api/requests", map[string]interface{}{
		"requester_id": "alice",
		"recipient_id": "bob",
		"slots":        []time.Time{slot},
	})
	var req domain.SpeedDateRequest
	decodeBody(t, rec, &req)
	rec = f.do(http.MethodPost, "/api/requests/"+req.ID+"/accept", map[string]interface{}{"slot": slot})
	var event domain.SpeedDateEvent
	decodeBody(t, rec, &event)

	rec = f.do(http.MethodGet, "/api/events/"+event.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]json.RawMessage
	decodeBody(t, rec, &out)
	if _, ok := out["event"]; !ok {
		t.Fatal("snapshot missing event")
	}
	if _, ok := out["feedback"]; ok {
		t.Fatal("snapshot must not expose feedback records")
	}
	var decided bool
	if err := json.Unmarshal(out["messaging_decided"], &decided); err != nil {
		t.Fatalf("messaging_decided: %v", err)
	}
	if decided {
		t.Fatal("messaging decided before the date happened")
	}
}

func TestLedgerEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.fund("alice", 500)

	rec := f.do(http.MethodGet, "/api/users/alice/ledger?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Entries []domain.LedgerEntry `json:"entries"`
	}
	decodeBody(t, rec, &out)
	if len(out.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(out.Entries))
	}
	if out.Entries[0].Reason != domain.ReasonTopUp {
		t.Fatalf("reason = %s, want %s", out.Entries[0].Reason, domain.ReasonTopUp)
	}
}

func TestStandingEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/users/alice/standing", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var standing domain.UserStanding
	decodeBody(t, rec, &standing)
	if standing.Tier != domain.TierNormal {
		t.Fatalf("tier = %s, want %s", standing.Tier, domain.TierNormal)
	}
	if !standing.BookingAllowed {
		t.Fatal("fresh user should be allowed to book")
	}
}

func TestMetricsExposed(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
