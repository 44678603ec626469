package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/leadflow/internal/queue"
	"github.com/memohai/leadflow/internal/tenants"
)

type fakeTenantLookup struct {
	tenants map[string]tenants.Tenant
	err     error
	calls   int
}

func (f *fakeTenantLookup) FindActiveByPlatformAccountID(_ context.Context, accountID string) (tenants.Tenant, error) {
	f.calls++
	if f.err != nil {
		return tenants.Tenant{}, f.err
	}
	t, ok := f.tenants[accountID]
	if !ok || !t.Active {
		return tenants.Tenant{}, tenants.ErrNotFound
	}
	return t, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, task queue.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func newTestWebhook() (*WebhookHandler, *fakeTenantLookup, *fakePublisher) {
	lookup := &fakeTenantLookup{tenants: map[string]tenants.Tenant{
		"17841400000000001": {ID: 7, PlatformAccountID: "17841400000000001", Active: true},
		"17841400000000002": {ID: 8, PlatformAccountID: "17841400000000002", Active: false},
	}}
	publisher := &fakePublisher{}
	h := NewWebhookHandler(nil, WebhookConfig{VerifyToken: "verify-me", DedupTTL: time.Hour}, lookup, publisher, queue.NewLocalIdempotency(64, time.Hour))
	return h, lookup, publisher
}

func postEvent(t *testing.T, h *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook/instagram", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Receive(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

const dmEvent = `{"object":"instagram","entry":[{"id":"17841400000000001","time":1700000000,"messaging":[{"sender":{"id":"1789"},"recipient":{"id":"17841400000000001"},"timestamp":1700000000,"message":{"mid":"m_1","text":"Salom, narxi qancha?"}}]}]}`

func TestWebhookVerify(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestWebhook()
	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{name: "valid", query: "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", status: http.StatusOK, body: "12345"},
		{name: "wrong token", query: "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", status: http.StatusForbidden},
		{name: "wrong mode", query: "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=12345", status: http.StatusForbidden},
		{name: "missing", query: "", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/webhook/instagram?"+tt.query, nil)
			rec := httptest.NewRecorder()
			if err := h.Verify(e.NewContext(req, rec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.status {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("unexpected body: %q", rec.Body.String())
			}
		})
	}
}

func TestWebhookVerifyFailsClosedWithoutSecret(t *testing.T) {
	t.Parallel()

	h := NewWebhookHandler(nil, WebhookConfig{}, &fakeTenantLookup{}, &fakePublisher{}, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/webhook/instagram?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil)
	rec := httptest.NewRecorder()
	_ = h.Verify(e.NewContext(req, rec))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("empty secret must never verify, got %d", rec.Code)
	}
}

func TestWebhookEnqueuesMessage(t *testing.T) {
	t.Parallel()

	h, _, publisher := newTestWebhook()
	rec := postEvent(t, h, dmEvent)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
	if len(publisher.tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(publisher.tasks))
	}
	task := publisher.tasks[0]
	if task.Kind != queue.KindProcessDM || task.Key != "7:1789" {
		t.Fatalf("unexpected task: %+v", task)
	}
	var payload ProcessDM
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.TenantID != 7 || payload.SenderID != "1789" || payload.MessageID != "m_1" || payload.Text != "Salom, narxi qancha?" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestWebhookEchoSkipsLookup(t *testing.T) {
	t.Parallel()

	h, lookup, publisher := newTestWebhook()
	body := `{"entry":[{"id":"17841400000000001","messaging":[{"sender":{"id":"17841400000000001"},"message":{"mid":"m_2","text":"our reply","is_echo":true}}]}]}`
	rec := postEvent(t, h, body)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
	if lookup.calls != 0 {
		t.Fatal("echo must not look up the tenant")
	}
	if len(publisher.tasks) != 0 {
		t.Fatal("echo must not enqueue")
	}
}

func TestWebhookUnknownOrInactiveTenant(t *testing.T) {
	t.Parallel()

	for _, account := range []string{"17841499999999999", "17841400000000002"} {
		h, _, publisher := newTestWebhook()
		body := strings.Replace(dmEvent, "17841400000000001", account, 1)
		rec := postEvent(t, h, body)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("account %s: expected 404, got %d", account, rec.Code)
		}
		if len(publisher.tasks) != 0 {
			t.Fatalf("account %s: must not enqueue", account)
		}
	}
}

func TestWebhookMalformedIsAcknowledged(t *testing.T) {
	t.Parallel()

	bodies := []string{
		`not json`,
		`{}`,
		`{"entry":[]}`,
		`{"entry":[{"id":"17841400000000001","messaging":[{"sender":{"id":"1789"}}]}]}`,
		`{"entry":[{"id":"17841400000000001","messaging":[{"sender":{"id":"1789"},"message":{"mid":"m_3"}}]}]}`,
		`{"entry":[{"id":"","messaging":[{"sender":{"id":"1789"},"message":{"text":"hi"}}]}]}`,
	}
	for _, body := range bodies {
		h, _, publisher := newTestWebhook()
		rec := postEvent(t, h, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("body %s: expected 200, got %d", body, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Fatalf("body %s: expected error body, got %s", body, rec.Body.String())
		}
		if len(publisher.tasks) != 0 {
			t.Fatalf("body %s: must not enqueue", body)
		}
	}
}

func TestWebhookDeduplicatesRedelivery(t *testing.T) {
	t.Parallel()

	h, _, publisher := newTestWebhook()
	postEvent(t, h, dmEvent)
	rec := postEvent(t, h, dmEvent)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(publisher.tasks) != 1 {
		t.Fatalf("redelivery must not enqueue twice, got %d", len(publisher.tasks))
	}
}

func TestWebhookEnqueueFailureReleasesDedup(t *testing.T) {
	t.Parallel()

	h, _, publisher := newTestWebhook()
	publisher.err = errors.New("redis down")
	rec := postEvent(t, h, dmEvent)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "enqueue failed") {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}

	publisher.err = nil
	postEvent(t, h, dmEvent)
	if len(publisher.tasks) != 1 {
		t.Fatal("a delivery that failed to enqueue must be accepted again")
	}
}
