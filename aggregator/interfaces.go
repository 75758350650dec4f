package aggregator

import "context"

type Broadcaster interface {
	// Broadcast writes model to every registered worker. It must not fail as
	// a whole because one worker could not be reached.
	Broadcast(ctx context.Context, model []float32) Delivery
}

type EventEmitter interface {
	EmitRoundClosed(ctx context.Context, result RoundResult) error
	EmitWorkerJoined(ctx context.Context, p Participant) error
	EmitWorkerLeft(ctx context.Context, p Participant) error
}

type nopEmitter struct{}

// NopEmitter discards all events.
func NopEmitter() EventEmitter {
	return nopEmitter{}
}

func (nopEmitter) EmitRoundClosed(context.Context, RoundResult) error { return nil }

func (nopEmitter) EmitWorkerJoined(context.Context, Participant) error { return nil }

func (nopEmitter) EmitWorkerLeft(context.Context, Participant) error { return nil }
