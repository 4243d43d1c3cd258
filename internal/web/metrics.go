package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics with bounded cardinality: no per-player or per-world labels.
var (
	connectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "share_connected_sessions",
		Help: "Currently connected client sessions",
	})

	framesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "share_frames_processed_total",
		Help: "Total inbound frames dispatched to handlers",
	})

	broadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "share_broadcasts_sent_total",
		Help: "Total presence and system frames fanned out to sessions",
	})

	knownPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "share_known_players",
		Help: "Players known to the registry, connected or not",
	})

	cachedWorlds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "share_cached_worlds",
		Help: "Worlds held in the universe cache",
	})
)

// SessionOpened increments the connected session gauge.
func SessionOpened() { connectedSessions.Inc() }

// SessionClosed decrements the connected session gauge.
func SessionClosed() { connectedSessions.Dec() }

// RecordFrame counts one dispatched inbound frame.
func RecordFrame() { framesProcessed.Inc() }

// RecordBroadcast counts one frame fanned out to another session.
func RecordBroadcast() { broadcastsSent.Inc() }

// UpdatePlayerCount sets the known player gauge.
func UpdatePlayerCount(count int) { knownPlayers.Set(float64(count)) }

// UpdateWorldCount sets the cached world gauge.
func UpdateWorldCount(count int) { cachedWorlds.Set(float64(count)) }
