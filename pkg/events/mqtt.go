package events

import (
	"context"
	"time"

	"github.com/absmach/hetsync/aggregator"
	"github.com/absmach/hetsync/pkg/mqtt"
)

var _ aggregator.EventEmitter = (*MQTTEventEmitter)(nil)

// RoundCompleted is the payload published when a round closes.
type RoundCompleted struct {
	RoundID       string    `json:"round_id"`
	Number        uint64    `json:"number"`
	Trigger       string    `json:"trigger"`
	Contributions int       `json:"contributions"`
	QuorumSize    int       `json:"quorum_size"`
	Contributors  []string  `json:"contributors"`
	Delivered     int       `json:"delivered"`
	Failed        int       `json:"failed"`
	DurationMS    int64     `json:"duration_ms"`
	CompletedAt   string    `json:"completed_at"`
	Model         []float32 `json:"model"`
}

type WorkerEvent struct {
	aggregator.Participant
	Event string `json:"event"`
	At    string `json:"at"`
}

type MQTTEventEmitter struct {
	pubsub mqtt.Publisher
	topics *TopicBuilder
}

func NewMQTTEventEmitter(pubsub mqtt.Publisher, topics *TopicBuilder) *MQTTEventEmitter {
	return &MQTTEventEmitter{
		pubsub: pubsub,
		topics: topics,
	}
}

func (e *MQTTEventEmitter) EmitRoundClosed(ctx context.Context, r aggregator.RoundResult) error {
	msg := RoundCompleted{
		RoundID:       r.RoundID,
		Number:        r.Number,
		Trigger:       string(r.Trigger),
		Contributions: r.Contributions,
		QuorumSize:    r.QuorumSize,
		Contributors:  r.Contributors,
		Delivered:     r.Delivered,
		Failed:        r.Failed,
		DurationMS:    r.Duration().Milliseconds(),
		CompletedAt:   r.ClosedAt.UTC().Format(time.RFC3339Nano),
		Model:         r.Model,
	}

	return e.pubsub.Publish(ctx, e.topics.RoundCompleteTopic(r.RoundID), msg)
}

func (e *MQTTEventEmitter) EmitWorkerJoined(ctx context.Context, p aggregator.Participant) error {
	return e.pubsub.Publish(ctx, e.topics.WorkerJoinedTopic(), workerEvent(p, "joined"))
}

func (e *MQTTEventEmitter) EmitWorkerLeft(ctx context.Context, p aggregator.Participant) error {
	return e.pubsub.Publish(ctx, e.topics.WorkerLeftTopic(), workerEvent(p, "left"))
}

func workerEvent(p aggregator.Participant, event string) WorkerEvent {
	return WorkerEvent{
		Participant: p,
		Event:       event,
		At:          time.Now().UTC().Format(time.RFC3339Nano),
	}
}
