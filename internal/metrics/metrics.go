package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingress
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_webhook_events_total",
			Help: "Webhook event deliveries by outcome",
		},
		[]string{"outcome"}, // enqueued, echo, duplicate, unknown_tenant, malformed, enqueue_failed
	)

	// Task execution
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_tasks_processed_total",
			Help: "Task executions by kind and outcome",
		},
		[]string{"kind", "outcome"}, // succeeded, retried, dead_lettered, deferred
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadflow_task_duration_seconds",
			Help:    "Task execution time",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	TasksDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_tasks_dead_lettered_total",
			Help: "Tasks moved to the dead-letter queue",
		},
		[]string{"kind"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leadflow_queue_depth",
			Help: "Tasks waiting per queue state",
		},
		[]string{"state"}, // ready, delayed, processing, dead
	)

	// Language model
	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadflow_llm_latency_seconds",
			Help:    "Language model call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	Regenerations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadflow_reply_regenerations_total",
			Help: "Replies regenerated because they repeated a recent reply",
		},
	)

	AttributesCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_lead_attributes_captured_total",
			Help: "Lead attributes captured from messages",
		},
		[]string{"attribute"},
	)

	// Delivery
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_messages_sent_total",
			Help: "Outbound Graph API sends by outcome",
		},
		[]string{"outcome"}, // sent, skipped, failed
	)
)
