package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/absmach/hetsync/pkg/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defHistorySize = 32

// Coordinator owns the accumulator buffer and the round state machine. Every
// transition, including the broadcast that closes a round, happens under mu,
// so a round closes exactly once and no contribution is lost.
type Coordinator struct {
	cfg         Config
	broadcaster Broadcaster
	emitter     EventEmitter
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time

	mu           sync.Mutex
	model        []float32
	status       Status
	received     int
	contributors []string
	startTime    time.Time
	roundID      string
	number       uint64
	history      []RoundResult
	lastModel    []float32
}

func NewCoordinator(cfg Config, broadcaster Broadcaster, emitter EventEmitter, logger *slog.Logger) (*Coordinator, error) {
	switch {
	case cfg.Dimension < 1:
		return nil, ErrInvalidDimension
	case cfg.QuorumSize < 1:
		return nil, ErrInvalidQuorum
	case !cfg.Naive && cfg.RoundTimeout <= 0:
		return nil, ErrInvalidTimeout
	case broadcaster == nil:
		return nil, ErrNoBroadcaster
	}

	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defHistorySize
	}
	if emitter == nil {
		emitter = NopEmitter()
	}

	return &Coordinator{
		cfg:         cfg,
		broadcaster: broadcaster,
		emitter:     emitter,
		logger:      logger,
		tracer:      otel.Tracer("github.com/absmach/hetsync/aggregator"),
		now:         time.Now,
		model:       make([]float32, cfg.Dimension),
		status:      StatusIdle,
		lastModel:   make([]float32, cfg.Dimension),
	}, nil
}

// Submit sums gradient into the active round, opening one if the coordinator
// is idle. It reports whether this contribution reached the quorum and closed
// the round. A gradient of the wrong length is rejected before any state
// changes.
func (c *Coordinator) Submit(ctx context.Context, workerID string, gradient []float32) (bool, error) {
	if len(gradient) != c.cfg.Dimension {
		return false, fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(gradient), c.cfg.Dimension)
	}

	c.mu.Lock()
	now := c.now()
	if c.status == StatusIdle {
		c.openLocked(now)
	}

	for i, v := range gradient {
		c.model[i] += v
	}
	c.received++
	c.contributors = append(c.contributors, workerID)
	metrics.GradientsReceived.Inc()

	c.logger.Info("Aggregated gradient",
		slog.String("round_id", c.roundID),
		slog.String("worker_id", workerID),
		slog.Int("received", c.received),
		slog.Int("quorum_size", c.cfg.QuorumSize))

	var result *RoundResult
	if c.received >= c.cfg.QuorumSize {
		c.logger.Info("Synchronization barrier reached", slog.String("round_id", c.roundID))
		r := c.closeLocked(ctx, TriggerQuorum, now)
		result = &r
	}
	c.mu.Unlock()

	if result == nil {
		return false, nil
	}
	c.emit(ctx, *result)

	return true, nil
}

// CheckDeadline closes the active round with whatever it has accumulated once
// the round timeout has elapsed at now. It never closes a round in naive mode.
func (c *Coordinator) CheckDeadline(ctx context.Context, now time.Time) bool {
	if c.cfg.Naive {
		return false
	}

	c.mu.Lock()
	if c.status != StatusAccumulating || now.Sub(c.startTime) < c.cfg.RoundTimeout {
		c.mu.Unlock()

		return false
	}

	c.logger.Warn("Round deadline exceeded",
		slog.String("round_id", c.roundID),
		slog.Int("received", c.received),
		slog.Int("quorum_size", c.cfg.QuorumSize),
		slog.Duration("elapsed", now.Sub(c.startTime)))
	result := c.closeLocked(ctx, TriggerDeadline, now)
	c.mu.Unlock()

	c.emit(ctx, result)

	return true
}

func (c *Coordinator) State() RoundState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := RoundState{
		Status:        c.status,
		Number:        c.number,
		Contributions: c.received,
		QuorumSize:    c.cfg.QuorumSize,
		Naive:         c.cfg.Naive,
		RoundTimeout:  c.cfg.RoundTimeout,
	}
	if c.status == StatusAccumulating {
		started := c.startTime
		state.RoundID = c.roundID
		state.StartedAt = &started
		state.Elapsed = c.now().Sub(started)
	}

	return state
}

// History returns closed rounds, oldest first.
func (c *Coordinator) History() []RoundResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.history)
}

// LatestModel returns the last broadcast buffer and the round that produced
// it. Before the first broadcast it is the zero vector of round 0.
func (c *Coordinator) LatestModel() ([]float32, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		return slices.Clone(c.lastModel), 0
	}

	return slices.Clone(c.lastModel), c.history[len(c.history)-1].Number
}

func (c *Coordinator) Dimension() int {
	return c.cfg.Dimension
}

func (c *Coordinator) openLocked(now time.Time) {
	c.status = StatusAccumulating
	c.startTime = now
	c.roundID = uuid.NewString()
	c.number++

	c.logger.Info("First gradient received, round timer started",
		slog.String("round_id", c.roundID),
		slog.Uint64("number", c.number))
}

func (c *Coordinator) closeLocked(ctx context.Context, trigger Trigger, now time.Time) RoundResult {
	ctx, span := c.tracer.Start(ctx, "round.close", trace.WithAttributes(
		attribute.String("round_id", c.roundID),
		attribute.String("trigger", string(trigger)),
		attribute.Int("contributions", c.received),
	))
	defer span.End()

	model := slices.Clone(c.model)
	delivery := c.broadcaster.Broadcast(ctx, model)

	result := RoundResult{
		RoundID:       c.roundID,
		Number:        c.number,
		Trigger:       trigger,
		Contributions: c.received,
		QuorumSize:    c.cfg.QuorumSize,
		Contributors:  c.contributors,
		StartedAt:     c.startTime,
		ClosedAt:      now,
		Delivery:      delivery,
		Model:         model,
	}

	c.history = append(c.history, result)
	if len(c.history) > c.cfg.HistorySize {
		c.history = slices.Delete(c.history, 0, len(c.history)-c.cfg.HistorySize)
	}
	c.lastModel = model

	clear(c.model)
	c.received = 0
	c.contributors = nil
	c.startTime = time.Time{}
	c.roundID = ""
	c.status = StatusIdle

	metrics.RoundsClosed.WithLabelValues(string(trigger)).Inc()
	metrics.RoundContributions.Observe(float64(result.Contributions))
	metrics.RoundDuration.WithLabelValues(string(trigger)).Observe(result.Duration().Seconds())

	c.logger.Info("Broadcasted new model",
		slog.String("round_id", result.RoundID),
		slog.String("trigger", string(trigger)),
		slog.Int("contributions", result.Contributions),
		slog.Int("delivered", delivery.Delivered),
		slog.Int("failed", delivery.Failed))

	return result
}

func (c *Coordinator) emit(ctx context.Context, result RoundResult) {
	if err := c.emitter.EmitRoundClosed(ctx, result); err != nil {
		c.logger.Warn("Failed to emit round completion",
			slog.String("round_id", result.RoundID),
			slog.Any("error", err))
	}
}
