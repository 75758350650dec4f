package server

import (
	"context"

	"github.com/absmach/hetsync/aggregator"
)

// AdminService is the read-only view of the server exposed over HTTP.
type AdminService interface {
	Round(ctx context.Context) (aggregator.RoundState, error)
	Rounds(ctx context.Context, limit int) ([]aggregator.RoundResult, error)
	Workers(ctx context.Context) ([]WorkerInfo, error)
	Model(ctx context.Context) (Model, error)
}

type Model struct {
	Round     uint64    `json:"round" cbor:"round"`
	Dimension int       `json:"dimension" cbor:"dimension"`
	Values    []float32 `json:"values" cbor:"values"`
}

type adminService struct {
	srv *Server
}

func NewAdminService(srv *Server) AdminService {
	return &adminService{srv: srv}
}

func (s *adminService) Round(_ context.Context) (aggregator.RoundState, error) {
	return s.srv.coordinator.State(), nil
}

// Rounds returns up to limit of the most recent closed rounds, oldest first.
// A non-positive limit returns all retained rounds.
func (s *adminService) Rounds(_ context.Context, limit int) ([]aggregator.RoundResult, error) {
	history := s.srv.coordinator.History()
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	return history, nil
}

func (s *adminService) Workers(_ context.Context) ([]WorkerInfo, error) {
	return s.srv.Workers(), nil
}

func (s *adminService) Model(_ context.Context) (Model, error) {
	values, round := s.srv.coordinator.LatestModel()

	return Model{
		Round:     round,
		Dimension: len(values),
		Values:    values,
	}, nil
}
