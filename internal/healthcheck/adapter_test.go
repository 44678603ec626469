package healthcheck

import (
	"context"
	"errors"
	"testing"
)

func TestPingCheckerListChecks(t *testing.T) {
	t.Parallel()

	checker := NewPingChecker().
		Add("postgres", func(context.Context) error { return nil }).
		Add("redis", func(context.Context) error { return errors.New("dial tcp: connection refused") }).
		Add("ignored", nil)

	items := checker.ListChecks(context.Background())
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "postgres" || items[0].Status != StatusOK {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].ID != "redis" || items[1].Status != StatusError {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
	if items[1].Detail != "dial tcp: connection refused" {
		t.Fatalf("unexpected detail: %s", items[1].Detail)
	}
	if Healthy(items) {
		t.Fatal("expected unhealthy result")
	}
}

func TestPingCheckerReplacesProbe(t *testing.T) {
	t.Parallel()

	checker := NewPingChecker().
		Add("redis", func(context.Context) error { return errors.New("down") }).
		Add("redis", func(context.Context) error { return nil })

	items := checker.ListChecks(context.Background())
	if len(items) != 1 || !Healthy(items) {
		t.Fatalf("expected one healthy item, got %+v", items)
	}
}

func TestPingCheckerNil(t *testing.T) {
	t.Parallel()

	var checker *PingChecker
	items := checker.ListChecks(context.Background())
	if len(items) != 0 {
		t.Fatalf("expected empty items, got %d", len(items))
	}
	if !Healthy(items) {
		t.Fatal("no checks should be healthy")
	}
}
