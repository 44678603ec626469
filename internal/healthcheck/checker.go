// Package healthcheck probes the backing services a process depends on.
package healthcheck

import "context"

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusError indicates check failed.
	StatusError = "error"
)

// CheckResult is the outcome of one dependency probe.
type CheckResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency"`
}

// Checker evaluates one or more dependency checks.
type Checker interface {
	ListChecks(ctx context.Context) []CheckResult
}

// Healthy reports whether every result is ok.
func Healthy(results []CheckResult) bool {
	for _, r := range results {
		if r.Status != StatusOK {
			return false
		}
	}
	return true
}
