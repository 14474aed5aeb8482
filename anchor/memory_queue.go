package anchor

import (
	"sync"

	"github.com/google/uuid"
)

// QueuedEntry is one payload waiting for an external submitter.
type QueuedEntry struct {
	ID      string
	Payload Payload
}

// MemoryQueue buffers anchor payloads in process for an external submitter
// to drain. Completion is reported back through the manager callback, the
// same way a real queue would.
type MemoryQueue struct {
	mu         sync.Mutex
	entries    []QueuedEntry
	onComplete func(batch []BatchItem, result Result)
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(id string, payload Payload) error {
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, QueuedEntry{ID: id, Payload: payload})
	return nil
}

// OnAnchorComplete wires the single completion callback.
func (q *MemoryQueue) OnAnchorComplete(fn func(batch []BatchItem, result Result)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onComplete = fn
}

// Drain removes and returns all buffered entries.
func (q *MemoryQueue) Drain() []QueuedEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}

// Size returns the number of buffered entries.
func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Complete reports a batch outcome to the wired callback.
func (q *MemoryQueue) Complete(batch []BatchItem, result Result) {
	q.mu.Lock()
	fn := q.onComplete
	q.mu.Unlock()
	if fn != nil {
		fn(batch, result)
	}
}
