package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsw_scan_failed_total",
			Help: "Number of times the scanner tool failed on a repository",
		},
		[]string{"backend"},
	)

	ScanCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lsw_scan_count_total",
			Help: "Total number of scanner invocations",
		},
	)

	ScanFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsw_scan_findings_total",
			Help: "Total number of findings reported by the scanner",
		},
		[]string{"backend"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lsw_scan_duration_seconds",
			Help:    "Scanner invocation duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend"},
	)
)
