package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientUsername(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v21.0/1789" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("fields"); got != "username" {
			t.Errorf("unexpected fields: %q", got)
		}
		if got := r.URL.Query().Get("access_token"); got != "tenant-token" {
			t.Errorf("unexpected token: %q", got)
		}
		_, _ = io.WriteString(w, `{"id":"1789","username":"aziz.k"}`)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL+"/v21.0/", time.Second)
	got, err := c.Username(context.Background(), "tenant-token", "1789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "aziz.k" {
		t.Fatalf("unexpected username: %q", got)
	}
}

func TestClientSendText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/me/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("access_token"); got != "tenant-token" {
			t.Errorf("unexpected token: %q", got)
		}
		var body struct {
			Recipient     struct{ ID string }   `json:"recipient"`
			MessagingType string                `json:"messaging_type"`
			Message       struct{ Text string } `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Recipient.ID != "1789" || body.MessagingType != "RESPONSE" || body.Message.Text != "Salom!" {
			t.Errorf("unexpected body: %+v", body)
		}
		_, _ = io.WriteString(w, `{"recipient_id":"1789","message_id":"m_out_1"}`)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	res, err := c.SendText(context.Background(), "tenant-token", "1789", "Salom!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MessageID != "m_out_1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClientAPIErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{name: "invalid token", status: http.StatusBadRequest, body: `{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`, permanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down","code":4}}`},
		{name: "server error", status: http.StatusBadGateway, body: `bad gateway`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(nil, srv.URL, time.Second).SendText(context.Background(), "t", "1", "hi")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Fatalf("unexpected status: %d", apiErr.StatusCode)
			}
			if IsPermanent(err) != tt.permanent {
				t.Fatalf("permanent = %v, want %v", IsPermanent(err), tt.permanent)
			}
		})
	}
}

func TestClientValidatesArguments(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, "http://127.0.0.1:1", time.Second)
	if _, err := c.Username(context.Background(), "t", " "); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := c.SendText(context.Background(), "t", "1", " "); err == nil {
		t.Fatal("expected error for empty text")
	}
}
