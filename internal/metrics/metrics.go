// Package metrics holds the Prometheus collectors of the syncer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APICalls counts remote calls by method and result.
	APICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discussion_syncer_api_calls_total",
		Help: "Remote API calls by method and result",
	}, []string{"method", "result"})

	// APICallDuration tracks remote call latency including retries.
	APICallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "discussion_syncer_api_call_duration_seconds",
		Help:    "Remote API call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"method"})

	// EntitiesSaved counts reconciled entities by kind.
	EntitiesSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discussion_syncer_entities_saved_total",
		Help: "Entities upserted into the store by kind",
	}, []string{"entity"})

	// DegradedReferences counts references dropped instead of failing the batch.
	DegradedReferences = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discussion_syncer_degraded_references_total",
		Help: "Unresolvable references left unset, by field",
	}, []string{"field"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "discussion_syncer_sync_duration_seconds",
		Help:    "Duration of a full scheduled sync",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)
