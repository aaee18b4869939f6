package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsw_git_sync_failed_total",
			Help: "Total number of failed working-copy synchronizations",
		},
		[]string{"backend"},
	)

	SyncCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lsw_git_sync_count_total",
			Help: "Total number of working-copy synchronizations",
		},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lsw_git_sync_duration_seconds",
			Help:    "Working-copy synchronization duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)
)
