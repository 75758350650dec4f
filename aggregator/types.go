package aggregator

import "time"

type Status string

const (
	StatusIdle         Status = "Idle"
	StatusAccumulating Status = "Accumulating"
)

// Trigger names the condition that closed a round.
type Trigger string

const (
	TriggerQuorum   Trigger = "quorum"
	TriggerDeadline Trigger = "deadline"
)

type Config struct {
	Dimension    int
	QuorumSize   int
	RoundTimeout time.Duration
	// Naive disables the round deadline; rounds close only on quorum.
	Naive       bool
	HistorySize int
}

// Delivery reports the outcome of one broadcast.
type Delivery struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

type RoundResult struct {
	RoundID       string    `json:"round_id"`
	Number        uint64    `json:"number"`
	Trigger       Trigger   `json:"trigger"`
	Contributions int       `json:"contributions"`
	QuorumSize    int       `json:"quorum_size"`
	Contributors  []string  `json:"contributors"`
	StartedAt     time.Time `json:"started_at"`
	ClosedAt      time.Time `json:"closed_at"`
	Delivery
	Model []float32 `json:"-"`
}

func (r RoundResult) Duration() time.Duration {
	return r.ClosedAt.Sub(r.StartedAt)
}

// RoundState is a point-in-time view of the active round.
type RoundState struct {
	Status        Status        `json:"status"`
	RoundID       string        `json:"round_id,omitempty"`
	Number        uint64        `json:"number"`
	Contributions int           `json:"contributions"`
	QuorumSize    int           `json:"quorum_size"`
	Naive         bool          `json:"naive"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	RoundTimeout  time.Duration `json:"round_timeout_ns"`
}

// Participant identifies a worker connection in events.
type Participant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}
