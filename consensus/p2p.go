package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/events"
	"github.com/zeyxx/CYNIC-sub012/exception"
	"github.com/zeyxx/CYNIC-sub012/logx"
	"github.com/zeyxx/CYNIC-sub012/monitoring"
)

const (
	// DefaultFinalityTimeout bounds every finality wait; expiry is a
	// degraded success, not an error.
	DefaultFinalityTimeout = 8 * time.Second

	// DefaultProposeTimeout bounds the propose POST.
	DefaultProposeTimeout = 5 * time.Second

	// FinalityStatusFinalized is the inbound event status that resolves a
	// wait as finalized.
	FinalityStatusFinalized = "finalized"
)

// ProposePayload is the minimal block descriptor POSTed to a peer node.
type ProposePayload struct {
	Type          string `json:"type"`
	Slot          uint64 `json:"slot"`
	Hash          string `json:"hash"`
	JudgmentsRoot string `json:"judgments_root"`
	JudgmentCount int    `json:"judgment_count"`
	PrevHash      string `json:"prev_hash"`
	Timestamp     int64  `json:"timestamp"`
}

// ProposeType tags outbound block proposals.
const ProposeType = "poj_block_proposal"

// ProposeAck is the peer's answer to a proposal.
type ProposeAck struct {
	Accepted bool   `json:"accepted"`
	Slot     uint64 `json:"slot"`
}

// FinalityResult is the single resolution of a finality wait. Exactly one of
// three shapes occurs: finalized, timeout fallback, or aborted on close.
type FinalityResult struct {
	Finalized     bool   `json:"finalized"`
	Slot          uint64 `json:"slot,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
	Fallback      bool   `json:"fallback,omitempty"`
	Aborted       bool   `json:"aborted,omitempty"`
}

// P2PConsensus proposes blocks to a peer node and waits, bounded, for the
// distributed finality signal. It owns the pending-wait map; entries are
// removed exactly once, which makes double resolution structurally
// impossible.
type P2PConsensus struct {
	mu      sync.Mutex
	nodeURL string
	client  *resty.Client
	bus     *events.EventBus
	subID   events.SubscriberID
	pending map[string]chan FinalityResult
	closed  bool
}

// NewP2PConsensus wires the consensus bridge to the event bus. nodeURL may
// be empty and set later via SetNode.
func NewP2PConsensus(bus *events.EventBus, nodeURL string) *P2PConsensus {
	c := &P2PConsensus{
		nodeURL: nodeURL,
		client:  resty.New().SetTimeout(DefaultProposeTimeout),
		bus:     bus,
		pending: make(map[string]chan FinalityResult),
	}

	if bus != nil {
		subID, ch := bus.Subscribe()
		c.subID = subID
		exception.SafeGo("p2p-finality-listener", func() {
			for ev := range ch {
				finality, ok := ev.(*events.BlockFinality)
				if !ok {
					continue
				}
				c.handleFinality(finality)
			}
		})
	}

	return c
}

// SetNode points the consensus bridge at a P2P endpoint.
func (c *P2PConsensus) SetNode(nodeURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodeURL = nodeURL
}

// Enabled reports whether a P2P endpoint is configured.
func (c *P2PConsensus) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodeURL != ""
}

// Propose POSTs the block descriptor to the configured endpoint. Best
// effort: any failure returns nil, never an error.
func (c *P2PConsensus) Propose(ctx context.Context, b *block.Block) *ProposeAck {
	c.mu.Lock()
	nodeURL := c.nodeURL
	c.mu.Unlock()
	if nodeURL == "" {
		return nil
	}

	payload := ProposePayload{
		Type:          ProposeType,
		Slot:          b.Slot,
		Hash:          b.Hash,
		JudgmentsRoot: b.JudgmentsRoot,
		JudgmentCount: len(b.Judgments),
		PrevHash:      b.PrevHash,
		Timestamp:     b.Timestamp,
	}

	var ack ProposeAck
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&ack).
		Post(nodeURL + "/propose")
	if err != nil {
		logx.Warn("P2P", "Propose failed for slot ", b.Slot, ": ", err)
		return nil
	}
	if resp.IsError() {
		logx.Warn("P2P", "Propose rejected for slot ", b.Slot, ": ", resp.Status())
		return nil
	}

	logx.Debug("P2P", fmt.Sprintf("Proposed block | slot=%d hash=%s", b.Slot, b.Hash))
	return &ack
}

// WaitForFinality blocks until an inbound finality event for the block's
// hash or the timeout, whichever comes first. Resolves exactly once.
func (c *P2PConsensus) WaitForFinality(b *block.Block, timeout time.Duration) FinalityResult {
	if timeout <= 0 {
		timeout = DefaultFinalityTimeout
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return FinalityResult{Aborted: true}
	}
	ch := make(chan FinalityResult, 1)
	c.pending[b.Hash] = ch
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		return result
	case <-timer.C:
		if c.resolve(b.Hash, FinalityResult{Finalized: false, Fallback: true}) {
			monitoring.IncreaseFinalityFallbackCount()
			logx.Warn("P2P", "Finality timeout for slot ", b.Slot, ", falling back to local finality")
		}
		// exactly one value is in flight: either the event's result raced
		// the timer, or the fallback just sent above
		return <-ch
	}
}

// handleFinality resolves the matching wait; events for hashes with no
// pending entry are ignored, which makes duplicate and late events harmless.
func (c *P2PConsensus) handleFinality(ev *events.BlockFinality) {
	if ev.Status() != FinalityStatusFinalized {
		return
	}
	resolved := c.resolve(ev.BlockHash(), FinalityResult{
		Finalized:     true,
		Slot:          ev.BlockSlot(),
		Confirmations: ev.Confirmations(),
	})
	if resolved {
		logx.Info("P2P", "Finality observed for slot ", ev.BlockSlot())
	}
}

// resolve removes the pending entry and sends the result iff the entry was
// still present. The channel is buffered so the send never blocks.
func (c *P2PConsensus) resolve(blockHash string, result FinalityResult) bool {
	c.mu.Lock()
	ch, ok := c.pending[blockHash]
	if ok {
		delete(c.pending, blockHash)
	}
	c.mu.Unlock()

	if ok {
		ch <- result
	}
	return ok
}

// PendingCount returns the number of unresolved finality waits.
func (c *P2PConsensus) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close rejects every unresolved wait and stops the finality listener.
func (c *P2PConsensus) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan FinalityResult)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- FinalityResult{Aborted: true}
	}

	if c.bus != nil && c.subID != "" {
		c.bus.Unsubscribe(c.subID)
	}
}
