package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Message pipeline
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_messages_total",
			Help: "Inbound chat messages by outcome",
		},
		[]string{"result"}, // "accepted", "rate_limited", "blocked"
	)

	InvalidFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_invalid_frames_total",
			Help: "Oversized or malformed inbound frames",
		},
	)

	// Connection lifecycle
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_connections_total",
			Help: "Connections accepted into a room",
		},
	)

	ForcedCloses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_forced_closes_total",
			Help: "Connections closed for repeated protocol errors",
		},
	)

	DeniedConnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_denied_connects_total",
			Help: "Connections refused for a banned user id",
		},
	)

	// Presence
	PresenceBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_presence_broadcasts_total",
			Help: "Coalesced presence broadcasts sent",
		},
	)
)
