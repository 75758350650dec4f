package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/hetsync/aggregator"
	"github.com/absmach/hetsync/pkg/metrics"
	"github.com/absmach/hetsync/pkg/wire"
)

var _ aggregator.Broadcaster = (*Distributor)(nil)

// Distributor frames the model once and writes the same bytes to every
// registered worker in registration order.
type Distributor struct {
	registry     *Registry
	writeTimeout time.Duration
	logger       *slog.Logger
}

func NewDistributor(registry *Registry, writeTimeout time.Duration, logger *slog.Logger) *Distributor {
	return &Distributor{
		registry:     registry,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Broadcast never stops early: a worker that cannot be written to is counted
// as failed and closed, since a partial write leaves its stream mid-frame.
// Its read loop then unregisters it.
func (d *Distributor) Broadcast(_ context.Context, model []float32) aggregator.Delivery {
	frame := wire.EncodeModel(model)

	var delivery aggregator.Delivery
	for _, w := range d.registry.Snapshot() {
		if err := w.Write(frame, d.writeTimeout); err != nil {
			delivery.Failed++
			metrics.BroadcastWrites.WithLabelValues("failed").Inc()
			w.Close()
			d.logger.Warn("Failed to send model to worker, closing connection",
				slog.String("worker_id", w.id),
				slog.String("worker", w.name),
				slog.Any("error", err))

			continue
		}
		delivery.Delivered++
		metrics.BroadcastWrites.WithLabelValues("delivered").Inc()
	}

	return delivery
}
