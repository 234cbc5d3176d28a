// Package metrics holds the Prometheus collectors exported by the realtime
// gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat_gateway"

type Gateway struct {
	Connections       prometheus.Gauge
	OnlineActors      prometheus.Gauge
	TypingMarks       prometheus.Gauge
	VoiceParticipants prometheus.Gauge
	EventsEmitted     *prometheus.CounterVec
	FramesDropped     prometheus.Counter
	ActionsRejected   *prometheus.CounterVec
	HandshakeFailures *prometheus.CounterVec
}

// NewGateway registers the gateway collectors with reg. A nil reg builds
// unregistered collectors.
func NewGateway(reg prometheus.Registerer) *Gateway {
	f := promauto.With(reg)
	return &Gateway{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Authenticated connections currently registered.",
		}),
		OnlineActors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_actors",
			Help:      "Actors with at least one live connection.",
		}),
		TypingMarks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "typing_marks",
			Help:      "Active typing indicators.",
		}),
		VoiceParticipants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_participants",
			Help:      "Participants across all voice rosters.",
		}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Events fanned out to rooms, by event name.",
		}, []string{"event"}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because a connection's send buffer was full.",
		}),
		ActionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_rejected_total",
			Help:      "Inbound actions answered with ok=false, by action and code.",
		}, []string{"action", "code"}),
		HandshakeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Connection attempts refused before registration, by reason (token errors, snapshot_failed, gateway_stopped).",
		}, []string{"reason"}),
	}
}
