package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentpilot_dispatches_total",
			Help: "Total number of schedule dispatch attempts",
		},
		[]string{"trigger", "status"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentpilot_dispatch_duration_seconds",
			Help:    "Dispatch duration in seconds, generation call included",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"trigger"},
	)

	CreditDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contentpilot_credit_denials_total",
			Help: "Dispatches blocked by an exhausted credit balance",
		},
	)

	GenerationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contentpilot_generation_failures_total",
			Help: "Generation calls that returned an error",
		},
	)

	SchedulesClaimLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contentpilot_schedule_claim_lost_total",
			Help: "Dispatches skipped because another trigger claimed the schedule first",
		},
	)

	SchedulesDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentpilot_schedules_due",
			Help: "Due schedules found by the last polling pass",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentpilot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
