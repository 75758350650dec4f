package api

import (
	"github.com/absmach/hetsync/aggregator"
	"github.com/absmach/hetsync/server"
)

type roundsReq struct {
	Limit int
}

type roundRes struct {
	aggregator.RoundState
	ElapsedMS int64 `json:"elapsed_ms"`
	TimeoutMS int64 `json:"round_timeout_ms"`
}

type roundView struct {
	aggregator.RoundResult
	DurationMS int64 `json:"duration_ms"`
}

type roundsRes struct {
	Total  int         `json:"total"`
	Rounds []roundView `json:"rounds"`
}

type workersRes struct {
	Total   int                 `json:"total"`
	Workers []server.WorkerInfo `json:"workers"`
}

type modelRes struct {
	server.Model
}
