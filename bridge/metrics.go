package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay directions, used as metric label values and in logs.
const (
	DirectionDiscordToStoat = "discord_to_stoat"
	DirectionStoatToDiscord = "stoat_to_discord"
)

// Drop reasons, used as metric label values.
const (
	DropReasonEmpty    = "empty"
	DropReasonNotReady = "not_ready"
	DropReasonSendFail = "send_failed"
)

// Metrics provides observability for the relay.
type Metrics struct {
	MessagesRelayed *prometheus.CounterVec
	MessagesDropped *prometheus.CounterVec
	EditsRelayed    *prometheus.CounterVec
	DeletesRelayed  *prometheus.CounterVec
	PairsReady      prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests
// pass a fresh registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MessagesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_messages_relayed_total",
			Help: "Total number of messages relayed, by direction",
		}, []string{"direction"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_messages_dropped_total",
			Help: "Total number of messages dropped instead of relayed, by direction and reason",
		}, []string{"direction", "reason"}),
		EditsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_edits_relayed_total",
			Help: "Total number of message edits propagated, by direction",
		}, []string{"direction"}),
		DeletesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_deletes_relayed_total",
			Help: "Total number of message deletions propagated, by direction",
		}, []string{"direction"}),
		PairsReady: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_pairs_ready",
			Help: "Number of channel pairs ready to relay in both directions",
		}),
	}
}
