package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// transitionsTotal counts committed state changes.
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consentbot_transitions_total",
			Help: "Committed conversation state transitions.",
		},
		[]string{"from", "to"},
	)

	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consentbot_sessions_closed_total",
			Help: "Sessions closed, by close reason.",
		},
		[]string{"reason"},
	)

	outboundSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consentbot_outbound_messages_total",
			Help: "Outbound messages handed to the channel successfully.",
		},
		[]string{"type"},
	)

	// outboundFailures counts sends that failed after the state was committed.
	outboundFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consentbot_outbound_failures_total",
			Help: "Outbound messages the channel rejected.",
		},
		[]string{"type"},
	)

	duplicateEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consentbot_duplicate_events_total",
			Help: "Inbound provider events dropped as redeliveries.",
		},
	)

	sweeperActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consentbot_sweeper_actions_total",
			Help: "Per-session outcomes of inactivity sweeps.",
		},
		[]string{"action"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "consentbot_sweep_duration_seconds",
			Help:    "Wall time of one inactivity sweep.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		transitionsTotal,
		sessionsClosed,
		outboundSent,
		outboundFailures,
		duplicateEvents,
		sweeperActions,
		sweepDuration,
	)
}
