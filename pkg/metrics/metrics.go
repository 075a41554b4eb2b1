// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks linkage runs by kind and status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "linkage",
			Name:      "runs_total",
			Help:      "Total number of linkage runs by kind and status",
		},
		[]string{"kind", "status"},
	)

	// RunDuration tracks linkage run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "linkage",
			Name:      "run_duration_seconds",
			Help:      "Duration of linkage runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"kind"},
	)

	// RecordsProcessed tracks person records fed to the engines
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "linkage",
			Name:      "records_processed_total",
			Help:      "Total number of person records processed",
		},
		[]string{"kind"},
	)

	// ClustersEmitted tracks clusters produced by clustering runs
	ClustersEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "clustering",
			Name:      "clusters_total",
			Help:      "Total number of clusters emitted",
		},
	)

	// ClusterSize tracks the member count of emitted clusters
	ClusterSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "clustering",
			Name:      "cluster_size",
			Help:      "Number of records per emitted cluster",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100},
		},
	)

	// MatchesEmitted tracks match rows by whether they refer to a real target
	MatchesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "matches_total",
			Help:      "Total number of match rows emitted",
		},
		[]string{"matched"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)

// RecordRun records a finished linkage run
func RecordRun(kind, status string, records int, durationSeconds float64) {
	RunsTotal.WithLabelValues(kind, status).Inc()
	RunDuration.WithLabelValues(kind).Observe(durationSeconds)
	RecordsProcessed.WithLabelValues(kind).Add(float64(records))
}

// RecordCluster records one emitted cluster
func RecordCluster(size int) {
	ClustersEmitted.Inc()
	ClusterSize.Observe(float64(size))
}

// RecordMatch records one emitted match row
func RecordMatch(matched bool) {
	label := "false"
	if matched {
		label = "true"
	}
	MatchesEmitted.WithLabelValues(label).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
