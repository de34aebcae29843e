// Package observability exports the Prometheus metrics the queue and its
// supporting components report, mirroring the naming and bucket
// conventions of the teacher's observability package.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of items per stage.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ciqueue_depth",
		Help: "Current number of items in the build queue, by stage",
	}, []string{"stage"})

	// DispatchDecisions tracks dispatch/maintenance decisions by kind.
	DispatchDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ciqueue_dispatch_decisions_total",
		Help: "Total number of scheduling decisions made by the queue",
	}, []string{"decision"})

	// PopLatency tracks time spent inside Pop before a task is returned.
	PopLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ciqueue_pop_latency_seconds",
		Help:    "Time an executor spends parked in Pop before receiving a task",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// ParkedExecutors tracks the number of offers currently in the parked
	// table, including offers already assigned a task whose executor has not
	// yet woken.
	ParkedExecutors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ciqueue_parked_executors",
		Help: "Current number of executors parked in Pop",
	})

	// MaintenanceDuration tracks the duration of a single maintenance pass.
	MaintenanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ciqueue_maintenance_duration_seconds",
		Help:    "Duration of a single maintenance pass (A+B)",
		Buckets: prometheus.DefBuckets,
	})

	// ConnectedNodes tracks the number of currently non-offline nodes.
	ConnectedNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ciqueue_connected_nodes",
		Help: "Current number of nodes not marked offline",
	})

	// RedisLatency tracks environment-handle Redis roundtrip latency.
	RedisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ciqueue_redis_roundtrip_latency_seconds",
		Help:    "Redis operation latency for the distributed environment handle",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
)
