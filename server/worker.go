package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/hetsync/aggregator"
	"github.com/google/uuid"
)

var namegen = namegenerator.NewGenerator()

// Worker is one accepted worker connection. Reads happen on the connection's
// own goroutine; writes come from broadcasts and are serialized by writeMu.
type Worker struct {
	id          string
	name        string
	conn        net.Conn
	connectedAt time.Time

	writeMu       sync.Mutex
	closeOnce     sync.Once
	closeErr      error
	contributions atomic.Uint64
}

type WorkerInfo struct {
	aggregator.Participant
	Contributions uint64 `json:"contributions"`
}

func newWorker(conn net.Conn) *Worker {
	return &Worker{
		id:          uuid.NewString(),
		name:        namegen.Generate(),
		conn:        conn,
		connectedAt: time.Now(),
	}
}

func (w *Worker) ID() string {
	return w.id
}

// Write sends one complete frame. A zero timeout means no write deadline.
func (w *Worker) Write(frame []byte, timeout time.Duration) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err := w.conn.Write(frame)

	return err
}

// Close closes the socket once; later calls return the first result.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.conn.Close()
	})

	return w.closeErr
}

func (w *Worker) Participant() aggregator.Participant {
	return aggregator.Participant{
		ID:          w.id,
		Name:        w.name,
		RemoteAddr:  w.conn.RemoteAddr().String(),
		ConnectedAt: w.connectedAt,
	}
}

func (w *Worker) Info() WorkerInfo {
	return WorkerInfo{
		Participant:   w.Participant(),
		Contributions: w.contributions.Load(),
	}
}
