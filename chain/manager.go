package chain

import (
	"context"
	"sync"
	"time"

	"github.com/zeyxx/CYNIC-sub012/anchor"
	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/consensus"
	"github.com/zeyxx/CYNIC-sub012/events"
	"github.com/zeyxx/CYNIC-sub012/exception"
	"github.com/zeyxx/CYNIC-sub012/export"
	"github.com/zeyxx/CYNIC-sub012/logx"
	"github.com/zeyxx/CYNIC-sub012/monitoring"
	"github.com/zeyxx/CYNIC-sub012/operator"
	"github.com/zeyxx/CYNIC-sub012/store"
	"github.com/zeyxx/CYNIC-sub012/types"
	"github.com/zeyxx/CYNIC-sub012/validator"
)

const (
	DefaultBatchSize    = 10
	DefaultBatchTimeout = 30 * time.Second
	DefaultLegacyPrefix = "cynic-operator"
)

// Config tunes the batching state machine.
type Config struct {
	BatchSize        int
	BatchTimeout     time.Duration
	FinalityTimeout  time.Duration
	AnchoringEnabled bool
	LegacyPrefix     string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.FinalityTimeout <= 0 {
		c.FinalityTimeout = consensus.DefaultFinalityTimeout
	}
	if c.LegacyPrefix == "" {
		c.LegacyPrefix = DefaultLegacyPrefix
	}
	return c
}

// Status is an explicit point-in-time snapshot, computed on demand.
type Status struct {
	Initialized    bool             `json:"initialized"`
	Available      bool             `json:"available"`
	Head           *types.ChainHead `json:"head,omitempty"`
	PendingCount   int              `json:"pending_count"`
	AnchorsTracked int              `json:"anchors_tracked"`
	AnchorsPending int              `json:"anchors_pending"`
	FinalityWaits  int              `json:"finality_waits"`
	P2PEnabled     bool             `json:"p2p_enabled"`
	MultiOperator  bool             `json:"multi_operator"`
	HasQuorum      bool             `json:"has_quorum"`
}

// Manager owns the pending-judgment queue and the chain head. It batches
// judgments into blocks and composes the validator, anchor manager and P2P
// consensus to decide the anchoring/finality strategy per block.
//
// Manager exclusively owns the queue, head and batch timer; the other
// components own their maps and are reached only through method calls.
type Manager struct {
	cfg         Config
	persistence store.PersistenceManager
	validator   *validator.BlockValidator
	anchors     *anchor.Manager
	p2p         *consensus.P2PConsensus
	registry    *operator.Registry
	bus         *events.EventBus

	// createMu serializes block creation; mu guards queue, timer and head.
	createMu sync.Mutex
	mu       sync.Mutex

	pending     []types.Judgment
	head        *types.ChainHead
	timer       *time.Timer
	initialized bool
	lastBlockAt time.Time
}

// NewManager wires the orchestrator. registry may be nil for legacy
// single-operator deployments.
func NewManager(
	cfg Config,
	persistence store.PersistenceManager,
	blockValidator *validator.BlockValidator,
	anchors *anchor.Manager,
	p2p *consensus.P2PConsensus,
	registry *operator.Registry,
	bus *events.EventBus,
) *Manager {
	return &Manager{
		cfg:         cfg.withDefaults(),
		persistence: persistence,
		validator:   blockValidator,
		anchors:     anchors,
		p2p:         p2p,
		registry:    registry,
		bus:         bus,
	}
}

func (m *Manager) available() bool {
	return m.persistence != nil && m.persistence.Capabilities().PoJChain
}

// Initialize loads the head from persistence or synthesizes and persists a
// genesis block. Idempotent.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if !m.available() {
		logx.Warn("CHAIN", "Persistence has no PoJ chain capability, running degraded")
		m.mu.Lock()
		m.initialized = true
		m.mu.Unlock()
		return nil
	}

	head, err := m.persistence.GetPoJHead()
	if err != nil {
		return logx.Errorf("failed to load chain head: %w", err)
	}

	if head == nil {
		genesis, err := block.Genesis(m.cfg.LegacyPrefix)
		if err != nil {
			return logx.Errorf("failed to build genesis block: %w", err)
		}
		if err := m.persistence.StorePoJBlock(genesis); err != nil {
			return logx.Errorf("failed to persist genesis block: %w", err)
		}
		head = genesis.Head()
		logx.Info("CHAIN", "Genesis block created: ", genesis.Hash)
	}

	m.mu.Lock()
	m.head = head
	m.initialized = true
	m.mu.Unlock()

	monitoring.SetBlockHeight(head.Slot)
	logx.Info("CHAIN", "Chain initialized at slot ", head.Slot)
	return nil
}

// AddJudgment normalizes and appends a judgment to the pending queue. A full
// batch creates a block immediately; otherwise a single batch timer is armed
// if none is in flight.
func (m *Manager) AddJudgment(j types.Judgment) error {
	if !m.available() {
		return nil
	}

	normalized := j.Normalized()

	m.mu.Lock()
	m.pending = append(m.pending, normalized)
	count := len(m.pending)
	full := count >= m.cfg.BatchSize
	if !full && m.timer == nil {
		m.timer = time.AfterFunc(m.cfg.BatchTimeout, m.onBatchTimeout)
	}
	m.mu.Unlock()

	monitoring.SetPendingJudgments(count)

	if full {
		return m.createBlock()
	}
	return nil
}

// Flush force-creates a block from whatever is pending. No-op when empty.
func (m *Manager) Flush() error {
	if !m.available() {
		return nil
	}
	return m.createBlock()
}

func (m *Manager) onBatchTimeout() {
	m.mu.Lock()
	m.timer = nil
	m.mu.Unlock()
	if err := m.createBlock(); err != nil {
		logx.Error("CHAIN", "Batch timer block creation failed: ", err)
	}
}

// createBlock swaps the pending queue for a fresh one, builds and persists
// the candidate block, and runs the per-block anchoring/finality strategy.
// Judgments added while the block is in flight land in the next block.
func (m *Manager) createBlock() error {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return nil
	}
	batch := m.pending
	m.pending = make([]types.Judgment, 0, m.cfg.BatchSize)
	head := m.head
	m.mu.Unlock()

	if head == nil {
		m.requeueFront(batch)
		return logx.Errorf("cannot create block before initialization")
	}

	b, err := block.AssembleBlock(head.Slot+1, head.Hash, batch)
	if err != nil {
		m.requeueFront(batch)
		return logx.Errorf("failed to assemble block: %w", err)
	}

	if m.registry != nil {
		if !m.registry.HasQuorum() {
			logx.Warn("CHAIN", "Producing block without operator quorum")
		}
		if err := m.registry.SignBlock(b); err != nil {
			m.requeueFront(batch)
			return logx.Errorf("failed to sign block %d: %w", b.Slot, err)
		}
	} else {
		b.Identity = types.LegacyIdentity(m.cfg.LegacyPrefix)
	}

	if err := b.Seal(); err != nil {
		m.requeueFront(batch)
		return logx.Errorf("failed to seal block %d: %w", b.Slot, err)
	}

	if err := m.persistence.StorePoJBlock(b); err != nil {
		// a failed write never drops judgments and the head never advances
		m.requeueFront(batch)
		return logx.Errorf("failed to persist block %d: %w", b.Slot, err)
	}

	m.mu.Lock()
	m.head = b.Head()
	prevBlockAt := m.lastBlockAt
	m.lastBlockAt = time.Now()
	pendingCount := len(m.pending)
	m.mu.Unlock()

	monitoring.SetBlockHeight(b.Slot)
	monitoring.RecordJudgmentsInBlock(len(b.Judgments))
	monitoring.SetPendingJudgments(pendingCount)
	if !prevBlockAt.IsZero() {
		monitoring.RecordBlockTime(time.Since(prevBlockAt))
	}

	logx.Info("CHAIN", "Block created at slot ", b.Slot, " with ", len(b.Judgments), " judgments")
	if m.bus != nil {
		m.bus.Publish(events.NewBlockCreated(b.Slot, b.Hash, len(b.Judgments)))
	}

	m.runBlockStrategy(b)
	return nil
}

// runBlockStrategy decides anchoring/finality per block. Fully decoupled
// from block creation: failures here never reach AddJudgment/Flush callers.
func (m *Manager) runBlockStrategy(b *block.Block) {
	if m.p2p != nil && m.p2p.Enabled() {
		m.anchors.MarkPending(b)
		exception.SafeGo("poj-finality-wait", func() {
			m.p2p.Propose(context.Background(), b)
			result := m.p2p.WaitForFinality(b, m.cfg.FinalityTimeout)
			if result.Aborted {
				return
			}
			// timeout fallback anchors the same as distributed finality
			if m.cfg.AnchoringEnabled {
				m.anchors.AnchorBlock(b)
			}
		})
		return
	}

	if m.cfg.AnchoringEnabled {
		exception.SafeGo("poj-anchor", func() {
			m.anchors.AnchorBlock(b)
		})
		return
	}

	m.anchors.MarkPending(b)
}

// requeueFront pushes a failed batch back to the front of the pending queue,
// preserving original order, and re-arms the batch timer for the retry.
func (m *Manager) requeueFront(batch []types.Judgment) {
	m.mu.Lock()
	restored := make([]types.Judgment, 0, len(batch)+len(m.pending))
	restored = append(restored, batch...)
	restored = append(restored, m.pending...)
	m.pending = restored
	if m.timer == nil {
		m.timer = time.AfterFunc(m.cfg.BatchTimeout, m.onBatchTimeout)
	}
	count := len(m.pending)
	m.mu.Unlock()
	monitoring.SetPendingJudgments(count)
}

// ReceiveBlock ingests a block produced by a peer: it is validated against
// the current head, persisted, and on acceptance the head advances.
func (m *Manager) ReceiveBlock(b *block.Block) validator.ValidationResult {
	if !m.available() {
		return validator.ValidationResult{Accepted: false, Error: "persistence unavailable"}
	}

	m.mu.Lock()
	head := m.head
	m.mu.Unlock()

	newHead, result := m.validator.ReceiveBlock(b, head)
	if !result.Accepted {
		return result
	}

	m.mu.Lock()
	m.head = newHead
	m.mu.Unlock()
	monitoring.SetBlockHeight(newHead.Slot)
	return result
}

// GetHead returns a copy of the in-memory head, or nil before genesis.
func (m *Manager) GetHead() *types.ChainHead {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.head == nil {
		return nil
	}
	head := *m.head
	return &head
}

// GetPendingCount returns the number of queued judgments.
func (m *Manager) GetPendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// GetStatus computes a status snapshot on demand.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	head := m.head
	pendingCount := len(m.pending)
	initialized := m.initialized
	m.mu.Unlock()

	status := Status{
		Initialized:  initialized,
		Available:    m.available(),
		Head:         head,
		PendingCount: pendingCount,
	}
	if m.anchors != nil {
		status.AnchorsTracked = m.anchors.Count()
		status.AnchorsPending = m.anchors.PendingCount()
	}
	if m.p2p != nil {
		status.P2PEnabled = m.p2p.Enabled()
		status.FinalityWaits = m.p2p.PendingCount()
	}
	if m.registry != nil {
		status.MultiOperator = true
		status.HasQuorum = m.registry.HasQuorum()
	}
	return status
}

// ExportChain serializes a chain window into a versioned bundle.
func (m *Manager) ExportChain(opts export.Options) (*export.Bundle, error) {
	return export.Export(m.persistence, opts)
}

// ImportChain persists a bundle's blocks with optional link validation.
func (m *Manager) ImportChain(bundle *export.Bundle, opts export.ImportOptions) (*export.ImportReport, error) {
	report, err := export.Import(m.persistence, bundle, opts)
	if err != nil {
		return nil, err
	}

	// imported blocks may extend the chain past the cached head
	if head, headErr := m.persistence.GetPoJHead(); headErr == nil && head != nil {
		m.mu.Lock()
		if m.head == nil || head.Slot > m.head.Slot {
			m.head = head
		}
		m.mu.Unlock()
	}
	return report, nil
}

// VerifyIntegrity re-walks the persisted chain.
func (m *Manager) VerifyIntegrity() (*store.VerifyReport, error) {
	return export.VerifyIntegrity(m.persistence)
}

// SetAnchorQueue wires the external anchor queue.
func (m *Manager) SetAnchorQueue(q anchor.Queue) {
	m.anchors.SetQueue(q)
}

// SetP2PNode points the consensus bridge at a peer endpoint.
func (m *Manager) SetP2PNode(nodeURL string) {
	if m.p2p != nil {
		m.p2p.SetNode(nodeURL)
	}
}

// Close flushes pending judgments, disarms the batch timer and closes the
// consensus bridge, rejecting any in-flight finality waits.
func (m *Manager) Close() error {
	err := m.Flush()

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	if m.p2p != nil {
		m.p2p.Close()
	}
	return err
}
