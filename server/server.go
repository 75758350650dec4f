package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/hetsync/aggregator"
	"github.com/absmach/hetsync/pkg/metrics"
	"github.com/absmach/hetsync/pkg/wire"
	"golang.org/x/sync/errgroup"
)

const (
	readBufferSize  = 32 * 1024
	defDeadlinePoll = 100 * time.Millisecond
)

type Config struct {
	ListenAddress string
	// DeadlinePoll bounds how late a round can close after its deadline.
	DeadlinePoll time.Duration
	Naive        bool
	// MaxPayload caps the bytes a worker frame may announce. Zero derives it
	// from the coordinator's dimension.
	MaxPayload uint64
}

// Server accepts worker connections, reassembles their gradient frames and
// hands them to the coordinator. In timeout-bounded mode it also polls the
// coordinator's round deadline so rounds close even when no worker sends
// anything.
type Server struct {
	cfg         Config
	coordinator *aggregator.Coordinator
	registry    *Registry
	emitter     aggregator.EventEmitter
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	closed  bool
	readers sync.WaitGroup
}

func New(cfg Config, coordinator *aggregator.Coordinator, registry *Registry, emitter aggregator.EventEmitter, logger *slog.Logger) *Server {
	if cfg.DeadlinePoll <= 0 {
		cfg.DeadlinePoll = defDeadlinePoll
	}
	if cfg.MaxPayload == 0 {
		cfg.MaxPayload = uint64(coordinator.Dimension() * wire.FloatSize)
	}
	if emitter == nil {
		emitter = aggregator.NopEmitter()
	}

	return &Server{
		cfg:         cfg,
		coordinator: coordinator,
		registry:    registry,
		emitter:     emitter,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}

	return s.Serve(ctx, ln)
}

// Serve runs until ctx is cancelled or accepting fails. On return the
// listener and every worker connection are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		s.closeAll()

		return nil
	})

	g.Go(func() error {
		return s.acceptLoop(ctx, ln)
	})

	if !s.cfg.Naive {
		g.Go(func() error {
			return s.deadlineLoop(ctx)
		})
	}

	s.logger.Info("Aggregation server listening",
		slog.String("address", ln.Addr().String()),
		slog.Bool("naive", s.cfg.Naive))

	err := g.Wait()
	s.readers.Wait()

	return err
}

func (s *Server) Workers() []WorkerInfo {
	workers := s.registry.Snapshot()
	infos := make([]WorkerInfo, 0, len(workers))
	for _, w := range workers {
		infos = append(infos, w.Info())
	}

	return infos
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to accept worker connection: %w", err)
		}

		w := newWorker(conn)
		if !s.register(w) {
			w.Close()

			return nil
		}

		s.logger.Info("Worker connected",
			slog.String("worker_id", w.id),
			slog.String("worker", w.name),
			slog.String("remote_addr", conn.RemoteAddr().String()))

		go s.serveWorker(ctx, w)
	}
}

func (s *Server) register(w *Worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.registry.Register(w)
	s.readers.Add(1)

	return true
}

func (s *Server) closeAll() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for _, w := range s.registry.Snapshot() {
		w.Close()
	}
}

func (s *Server) deadlineLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.DeadlinePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.coordinator.CheckDeadline(ctx, s.now())
		}
	}
}

// serveWorker drains the connection until it closes, delivering each
// completed frame in stream order. A partially received frame is discarded
// with the connection.
func (s *Server) serveWorker(ctx context.Context, w *Worker) {
	defer s.readers.Done()
	defer s.teardown(ctx, w)

	if err := s.emitter.EmitWorkerJoined(ctx, w.Participant()); err != nil {
		s.logger.Warn("Failed to emit worker join", slog.Any("error", err))
	}

	dec := wire.NewDecoder(s.cfg.MaxPayload)
	buf := make([]byte, readBufferSize)

	for {
		n, err := w.conn.Read(buf)
		if n > 0 {
			frames, ferr := dec.Feed(buf[:n])
			for _, frame := range frames {
				if !s.handleFrame(ctx, w, frame) {
					return
				}
			}
			if ferr != nil {
				s.protocolError(w, reason(ferr), ferr)

				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.logger.Info("Worker disconnected",
					slog.String("worker_id", w.id),
					slog.String("worker", w.name),
					slog.Int("partial_bytes", dec.Buffered()))
			} else {
				s.logger.Warn("Worker connection error",
					slog.String("worker_id", w.id),
					slog.String("worker", w.name),
					slog.Any("error", err))
			}

			return
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, w *Worker, frame []byte) bool {
	gradient, err := wire.DecodeFloats(frame)
	if err == nil {
		_, err = s.coordinator.Submit(ctx, w.id, gradient)
	}
	if err != nil {
		s.protocolError(w, reason(err), err)

		return false
	}
	w.contributions.Add(1)

	return true
}

func (s *Server) protocolError(w *Worker, reason string, err error) {
	metrics.ProtocolErrors.WithLabelValues(reason).Inc()
	s.logger.Warn("Terminating worker after protocol violation",
		slog.String("worker_id", w.id),
		slog.String("worker", w.name),
		slog.String("reason", reason),
		slog.Any("error", err))
}

// teardown removes w from the registry and closes it. Both steps are
// idempotent, so a worker is released exactly once however its loop ends.
func (s *Server) teardown(ctx context.Context, w *Worker) {
	removed := s.registry.Unregister(w)
	w.Close()

	if removed {
		if err := s.emitter.EmitWorkerLeft(ctx, w.Participant()); err != nil {
			s.logger.Warn("Failed to emit worker leave", slog.Any("error", err))
		}
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, wire.ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(err, wire.ErrMisalignedData):
		return "misaligned"
	case errors.Is(err, aggregator.ErrDimensionMismatch):
		return "dimension"
	default:
		return "unknown"
	}
}
