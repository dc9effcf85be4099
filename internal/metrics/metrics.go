package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Total number of applied session lifecycle transitions",
		},
		[]string{"transition"},
	)

	meetingCredentialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meeting_credentials_total",
			Help: "Total number of issued meeting credentials by mode",
		},
		[]string{"mode"},
	)

	realtimeChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_channels",
			Help: "Number of connected real-time channels on this instance",
		},
	)

	realtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Total number of real-time events handed to local channels",
		},
		[]string{"event", "delivered"},
	)
)

func RecordTransition(transition string) {
	sessionTransitionsTotal.WithLabelValues(transition).Inc()
}

func RecordCredentials(signed bool) {
	mode := "signed"
	if !signed {
		mode = "fallback"
	}
	meetingCredentialsTotal.WithLabelValues(mode).Inc()
}

func ChannelOpened() {
	realtimeChannels.Inc()
}

func ChannelClosed() {
	realtimeChannels.Dec()
}

func RecordEvent(event string, delivered bool) {
	d := "false"
	if delivered {
		d = "true"
	}
	realtimeEventsTotal.WithLabelValues(event, d).Inc()
}
