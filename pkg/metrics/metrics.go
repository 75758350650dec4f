package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoundsClosed is the number of aggregation rounds closed, by trigger.
	RoundsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hetsync_rounds_closed_total",
			Help: "Total number of aggregation rounds closed",
		},
		[]string{"trigger"},
	)

	RoundContributions = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hetsync_round_contributions",
			Help:    "Number of gradients summed into a closed round",
			Buckets: prometheus.LinearBuckets(0, 1, 17),
		},
	)

	RoundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hetsync_round_duration_seconds",
			Help:    "Time from first contribution to broadcast",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
		},
		[]string{"trigger"},
	)

	// GradientsReceived counts gradients accepted into a round.
	GradientsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hetsync_gradients_received_total",
			Help: "Total number of gradients summed into the accumulator",
		},
	)

	BroadcastWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hetsync_broadcast_writes_total",
			Help: "Model writes to workers, by result",
		},
		[]string{"result"},
	)

	WorkersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hetsync_workers_connected",
			Help: "Number of workers currently registered for broadcast",
		},
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hetsync_protocol_errors_total",
			Help: "Connections terminated for protocol violations, by reason",
		},
		[]string{"reason"},
	)
)
