package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatcher_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TurnsTotal counts processed conversation turns by reply kind
	// (text, audio, apology).
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_turns_total",
			Help: "Total number of conversation turns processed.",
		},
		[]string{"kind"},
	)

	TurnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatcher_turn_duration_seconds",
			Help:    "End-to-end duration of a conversation turn.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_tool_calls_total",
			Help: "Total number of tool invocations by outcome.",
		},
		[]string{"tool", "outcome"},
	)

	ProviderFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_provider_failures_total",
			Help: "Total number of failed calls to external providers.",
		},
		[]string{"provider"},
	)

	MessagesDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_messages_delivered_total",
			Help: "Total number of outbound messages handed to a channel.",
		},
		[]string{"channel", "status"},
	)

	LanesBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_lanes_busy",
			Help: "Number of worker lanes currently processing a turn.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TurnsTotal,
		TurnDuration,
		ToolCallsTotal,
		ProviderFailuresTotal,
		MessagesDeliveredTotal,
		LanesBusy,
	)
}
