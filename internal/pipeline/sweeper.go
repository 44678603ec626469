package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memohai/leadflow/internal/metrics"
	"github.com/memohai/leadflow/internal/queue"
)

// Sweeper runs queue housekeeping on a cron schedule: due retries are
// promoted, tasks of stopped consumers recovered and depth gauges refreshed.
type Sweeper struct {
	maintainer queue.Maintainer
	cron       *cron.Cron
	logger     *slog.Logger
	timeout    time.Duration
}

func NewSweeper(log *slog.Logger, maintainer queue.Maintainer, schedule string) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{
		maintainer: maintainer,
		logger:     log.With(slog.String("component", "sweeper")),
		timeout:    30 * time.Second,
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.logger.Info("sweeper start")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep or ctx expiry.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep performs one housekeeping pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	promoted, err := s.maintainer.PromoteDue(ctx, time.Now())
	if err != nil {
		s.logger.Error("promote due tasks failed", slog.Any("error", err))
	} else if promoted > 0 {
		s.logger.Debug("promoted due tasks", slog.Int("count", promoted))
	}

	recovered, err := s.maintainer.RecoverStranded(ctx)
	if err != nil {
		s.logger.Error("recover stranded tasks failed", slog.Any("error", err))
	} else if recovered > 0 {
		s.logger.Warn("recovered stranded tasks", slog.Int("count", recovered))
	}

	depth, err := s.maintainer.Depth(ctx)
	if err != nil {
		s.logger.Error("queue depth failed", slog.Any("error", err))
		return
	}
	metrics.QueueDepth.WithLabelValues("ready").Set(float64(depth.Ready))
	metrics.QueueDepth.WithLabelValues("delayed").Set(float64(depth.Delayed))
	metrics.QueueDepth.WithLabelValues("processing").Set(float64(depth.Processing))
	metrics.QueueDepth.WithLabelValues("dead").Set(float64(depth.Dead))
}
