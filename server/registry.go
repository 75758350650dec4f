package server

import (
	"slices"
	"sync"

	"github.com/absmach/hetsync/pkg/metrics"
)

// Registry holds the workers that receive model broadcasts, in registration
// order. Membership does not depend on whether a worker contributed to the
// current round.
type Registry struct {
	mu      sync.RWMutex
	workers []*Worker
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(w *Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.workers, w) {
		return
	}
	r.workers = append(r.workers, w)
	metrics.WorkersConnected.Set(float64(len(r.workers)))
}

// Unregister removes w and reports whether it was registered.
func (r *Registry) Unregister(w *Worker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.Index(r.workers, w)
	if i < 0 {
		return false
	}
	r.workers = slices.Delete(r.workers, i, i+1)
	metrics.WorkersConnected.Set(float64(len(r.workers)))

	return true
}

// Snapshot returns the registered workers. Workers removed afterwards may
// still appear in a snapshot taken earlier; writes to them fail harmlessly.
func (r *Registry) Snapshot() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.workers)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.workers)
}
