// Package telemetry holds the Prometheus taps the rest of the system
// reports into. Collectors register on the default registry; the HTTP API
// exposes them at /metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deploysStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nopea_deploys_started_total",
		Help: "Deploys entering the orchestrator, by service and strategy.",
	}, []string{"service", "strategy"})

	deploysFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nopea_deploys_finished_total",
		Help: "Deploy outcomes, by service, status, and strategy.",
	}, []string{"service", "status", "strategy"})

	deployDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nopea_deploy_duration_seconds",
		Help:    "End-to-end deploy duration.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"service", "status"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nopea_agent_queue_depth",
		Help: "Waiting deploys per service agent.",
	}, []string{"service"})

	queueRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nopea_agent_queue_rejections_total",
		Help: "Deploys rejected because an agent queue was full.",
	}, []string{"service"})

	workerCrashes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nopea_worker_crashes_total",
		Help: "Deploy workers that terminated abnormally.",
	}, []string{"service"})

	graphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nopea_graph_nodes",
		Help: "Live nodes in the knowledge graph.",
	})

	graphRelationships = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nopea_graph_relationships",
		Help: "Live relationships in the knowledge graph.",
	})

	driftDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nopea_drift_detections_total",
		Help: "Post-deploy verifications that found drift, by outcome.",
	}, []string{"outcome"})
)

// DeployStart marks a deploy entering the orchestrator.
func DeployStart(service, strategy string) {
	deploysStarted.WithLabelValues(service, strategy).Inc()
}

// DeployStop marks a finished deploy with its outcome and duration.
func DeployStop(service, status, strategy string, duration time.Duration) {
	deploysFinished.WithLabelValues(service, status, strategy).Inc()
	deployDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

// SetQueueDepth reports an agent's current waiter count.
func SetQueueDepth(service string, depth int) {
	queueDepth.WithLabelValues(service).Set(float64(depth))
}

// QueueRejected counts a queue_full rejection.
func QueueRejected(service string) {
	queueRejections.WithLabelValues(service).Inc()
}

// WorkerCrashed counts an abnormal worker termination.
func WorkerCrashed(service string) {
	workerCrashes.WithLabelValues(service).Inc()
}

// SetGraphSize reports the knowledge graph's size.
func SetGraphSize(nodes, relationships int) {
	graphNodes.Set(float64(nodes))
	graphRelationships.Set(float64(relationships))
}

// DriftDetected counts a non-clean verification outcome.
func DriftDetected(outcome string) {
	driftDetections.WithLabelValues(outcome).Inc()
}
