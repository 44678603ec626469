package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"go.uber.org/fx"

	"github.com/memohai/leadflow/internal/config"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "leadflow "+version {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestMigrateDownRejectsBadSteps(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "down", "zero"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for non-numeric steps")
	}
}

func TestAppGraphIsComplete(t *testing.T) {
	for _, withHTTP := range []bool{true, false} {
		if err := fx.ValidateApp(appOptions("config.toml", withHTTP), fx.NopLogger); err != nil {
			t.Fatalf("withHTTP=%t: %v", withHTTP, err)
		}
	}
}

func TestRedisHeartbeatOutlivesLease(t *testing.T) {
	cfg := config.Defaults()
	cfg.Worker.LeaseTTL = config.Duration{Duration: 3 * time.Minute}

	opts := redisBrokerOptions(cfg)
	if opts.HeartbeatTTL <= cfg.Worker.LeaseTTL.Duration {
		t.Fatalf("heartbeat ttl %s must exceed lease ttl %s", opts.HeartbeatTTL, cfg.Worker.LeaseTTL.Duration)
	}
	if opts.Partitions != cfg.Queue.Partitions {
		t.Fatalf("partitions = %d, want %d", opts.Partitions, cfg.Queue.Partitions)
	}
}
