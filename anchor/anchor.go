package anchor

import (
	"fmt"
	"sync"
	"time"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/events"
	"github.com/zeyxx/CYNIC-sub012/logx"
	"github.com/zeyxx/CYNIC-sub012/monitoring"
)

// MemoPrefix identifies PoJ anchor payloads on the external chain.
const MemoPrefix = "CYNIC:POJ:"

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusQueued   Status = "QUEUED"
	StatusAnchored Status = "ANCHORED"
	StatusFailed   Status = "FAILED"
)

// Payload is the minimal per-block record submitted to the anchor queue.
type Payload struct {
	Memo          string `json:"memo"`
	Slot          uint64 `json:"slot"`
	MerkleRoot    string `json:"merkle_root"`
	JudgmentCount int    `json:"judgment_count"`
	Timestamp     int64  `json:"timestamp"`
}

// Queue is the external anchor queue collaborator. The actual blockchain
// transaction submission happens behind it.
type Queue interface {
	Enqueue(id string, payload Payload) error
}

// BatchItem identifies one anchored block inside a completion batch.
type BatchItem struct {
	Slot       uint64 `json:"slot"`
	MerkleRoot string `json:"merkle_root"`
}

// Result is the outcome the anchor queue reports for a batch.
type Result struct {
	OK        bool   `json:"ok"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StatusEntry tracks the anchoring lifecycle of one block. Memory only;
// losing it never corrupts the chain.
type StatusEntry struct {
	Status     Status `json:"status"`
	Slot       uint64 `json:"slot"`
	BlockHash  string `json:"block_hash"`
	QueuedAt   int64  `json:"queued_at,omitempty"`
	AnchoredAt int64  `json:"anchored_at,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

// Manager tracks per-block anchor status and bridges completion callbacks
// from the external anchor queue. Anchoring is best-effort and never gates
// chain liveness.
type Manager struct {
	mu       sync.RWMutex
	queue    Queue
	bus      *events.EventBus
	statuses map[string]*StatusEntry
	bySlot   map[uint64]string
}

func NewManager(bus *events.EventBus) *Manager {
	return &Manager{
		bus:      bus,
		statuses: make(map[string]*StatusEntry),
		bySlot:   make(map[uint64]string),
	}
}

// SetQueue wires the external anchor queue. The queue's completion side is
// expected to call HandleAnchorComplete exactly once per batch.
func (m *Manager) SetQueue(q Queue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = q
}

// AnchorBlock marks the block QUEUED and enqueues its payload. Enqueue
// failure flips it to FAILED without propagating.
func (m *Manager) AnchorBlock(b *block.Block) {
	payload := Payload{
		Memo:          MemoPrefix + b.Hash,
		Slot:          b.Slot,
		MerkleRoot:    b.JudgmentsRoot,
		JudgmentCount: len(b.Judgments),
		Timestamp:     time.Now().UnixMilli(),
	}

	m.mu.Lock()
	queue := m.queue
	m.statuses[b.Hash] = &StatusEntry{
		Status:    StatusQueued,
		Slot:      b.Slot,
		BlockHash: b.Hash,
		QueuedAt:  payload.Timestamp,
	}
	m.bySlot[b.Slot] = b.Hash
	m.mu.Unlock()

	if queue == nil {
		m.markFailed(b.Hash, "no anchor queue wired")
		return
	}

	id := fmt.Sprintf("poj-%d-%s", b.Slot, b.Hash[:8])
	if err := queue.Enqueue(id, payload); err != nil {
		logx.Error("ANCHOR", "Failed to enqueue block ", b.Slot, ": ", err)
		m.markFailed(b.Hash, err.Error())
	}
}

// MarkPending tracks the block without queuing it: anchoring disabled, or
// awaiting P2P finality.
func (m *Manager) MarkPending(b *block.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[b.Hash] = &StatusEntry{
		Status:    StatusPending,
		Slot:      b.Slot,
		BlockHash: b.Hash,
	}
	m.bySlot[b.Slot] = b.Hash
}

func (m *Manager) markFailed(blockHash, reason string) {
	m.mu.Lock()
	if entry, ok := m.statuses[blockHash]; ok {
		entry.Status = StatusFailed
	}
	m.mu.Unlock()

	monitoring.IncreaseAnchorFailureCount()
	if m.bus != nil {
		m.bus.Publish(events.NewAnchorFailed(blockHash, reason))
	}
}

// HandleAnchorComplete is the single completion callback from the anchor
// queue. On success it matches batch items back to tracked blocks by slot
// and flips them to ANCHORED with the returned signature.
func (m *Manager) HandleAnchorComplete(batch []BatchItem, result Result) {
	if !result.OK {
		logx.Warn("ANCHOR", "Anchor batch failed: ", result.Error)
		for _, item := range batch {
			m.mu.RLock()
			hash, ok := m.bySlot[item.Slot]
			m.mu.RUnlock()
			if ok {
				m.markFailed(hash, result.Error)
			}
		}
		return
	}

	now := time.Now().UnixMilli()
	for _, item := range batch {
		m.mu.Lock()
		hash, ok := m.bySlot[item.Slot]
		if !ok {
			m.mu.Unlock()
			logx.Warn("ANCHOR", "Completion for untracked slot ", item.Slot)
			continue
		}
		entry := m.statuses[hash]
		entry.Status = StatusAnchored
		entry.AnchoredAt = now
		entry.Signature = result.Signature
		slot := entry.Slot
		m.mu.Unlock()

		logx.Info("ANCHOR", "Block anchored at slot ", slot)
		if m.bus != nil {
			m.bus.Publish(events.NewBlockAnchored(slot, hash, result.Signature))
		}
	}
}

// Status returns the tracked entry for a block hash.
func (m *Manager) Status(blockHash string) (StatusEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.statuses[blockHash]
	if !ok {
		return StatusEntry{}, false
	}
	return *entry, true
}

// PendingCount returns the number of blocks not yet anchored or failed.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, entry := range m.statuses {
		if entry.Status == StatusPending || entry.Status == StatusQueued {
			count++
		}
	}
	return count
}

// Count returns the total number of tracked blocks.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}
