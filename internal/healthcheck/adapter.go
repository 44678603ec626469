package healthcheck

import (
	"context"
	"time"
)

// PingFunc probes one dependency.
type PingFunc func(ctx context.Context) error

// PingChecker adapts named ping functions, such as pgxpool.Pool.Ping or a
// redis client's Ping, to Checker.
type PingChecker struct {
	ids   []string
	pings map[string]PingFunc
}

// NewPingChecker creates an empty checker.
func NewPingChecker() *PingChecker {
	return &PingChecker{pings: map[string]PingFunc{}}
}

// Add registers a probe under id. A nil fn is ignored.
func (c *PingChecker) Add(id string, fn PingFunc) *PingChecker {
	if fn == nil {
		return c
	}
	if _, ok := c.pings[id]; !ok {
		c.ids = append(c.ids, id)
	}
	c.pings[id] = fn
	return c
}

// ListChecks runs every probe in registration order.
func (c *PingChecker) ListChecks(ctx context.Context) []CheckResult {
	if c == nil {
		return []CheckResult{}
	}
	result := make([]CheckResult, 0, len(c.ids))
	for _, id := range c.ids {
		start := time.Now()
		err := c.pings[id](ctx)
		item := CheckResult{
			ID:      id,
			Status:  StatusOK,
			Latency: time.Since(start).Round(time.Microsecond).String(),
		}
		if err != nil {
			item.Status = StatusError
			item.Detail = err.Error()
		}
		result = append(result, item)
	}
	return result
}
