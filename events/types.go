package events

import (
	"time"
)

// PoJEvent represents any event that occurs on the PoJ chain
type PoJEvent interface {
	Type() string
	Timestamp() time.Time
	BlockHash() string
}

// BlockCreated event when a block has been persisted and the head advanced
type BlockCreated struct {
	blockSlot     uint64
	blockHash     string
	judgmentCount int
	timestamp     time.Time
}

func NewBlockCreated(blockSlot uint64, blockHash string, judgmentCount int) *BlockCreated {
	return &BlockCreated{
		blockSlot:     blockSlot,
		blockHash:     blockHash,
		judgmentCount: judgmentCount,
		timestamp:     time.Now(),
	}
}

func (e *BlockCreated) Type() string {
	return "BlockCreated"
}

func (e *BlockCreated) Timestamp() time.Time {
	return e.timestamp
}

func (e *BlockCreated) BlockHash() string {
	return e.blockHash
}

func (e *BlockCreated) BlockSlot() uint64 {
	return e.blockSlot
}

func (e *BlockCreated) JudgmentCount() int {
	return e.judgmentCount
}

// BlockAnchored event when a block's merkle root has been anchored on the
// external chain
type BlockAnchored struct {
	blockSlot uint64
	blockHash string
	signature string
	timestamp time.Time
}

func NewBlockAnchored(blockSlot uint64, blockHash string, signature string) *BlockAnchored {
	return &BlockAnchored{
		blockSlot: blockSlot,
		blockHash: blockHash,
		signature: signature,
		timestamp: time.Now(),
	}
}

func (e *BlockAnchored) Type() string {
	return "BlockAnchored"
}

func (e *BlockAnchored) Timestamp() time.Time {
	return e.timestamp
}

func (e *BlockAnchored) BlockHash() string {
	return e.blockHash
}

func (e *BlockAnchored) BlockSlot() uint64 {
	return e.blockSlot
}

func (e *BlockAnchored) Signature() string {
	return e.signature
}

// AnchorFailed event when an anchor submission or completion failed
type AnchorFailed struct {
	blockHash string
	reason    string
	timestamp time.Time
}

func NewAnchorFailed(blockHash string, reason string) *AnchorFailed {
	return &AnchorFailed{
		blockHash: blockHash,
		reason:    reason,
		timestamp: time.Now(),
	}
}

func (e *AnchorFailed) Type() string {
	return "AnchorFailed"
}

func (e *AnchorFailed) Timestamp() time.Time {
	return e.timestamp
}

func (e *AnchorFailed) BlockHash() string {
	return e.blockHash
}

func (e *AnchorFailed) Reason() string {
	return e.reason
}

// BlockFinality inbound event from the P2P consensus layer for a proposed
// block
type BlockFinality struct {
	blockHash     string
	blockSlot     uint64
	status        string
	confirmations int
	timestamp     time.Time
}

func NewBlockFinality(blockHash string, blockSlot uint64, status string, confirmations int) *BlockFinality {
	return &BlockFinality{
		blockHash:     blockHash,
		blockSlot:     blockSlot,
		status:        status,
		confirmations: confirmations,
		timestamp:     time.Now(),
	}
}

func (e *BlockFinality) Type() string {
	return "BlockFinality"
}

func (e *BlockFinality) Timestamp() time.Time {
	return e.timestamp
}

func (e *BlockFinality) BlockHash() string {
	return e.blockHash
}

func (e *BlockFinality) BlockSlot() uint64 {
	return e.blockSlot
}

func (e *BlockFinality) Status() string {
	return e.status
}

func (e *BlockFinality) Confirmations() int {
	return e.confirmations
}
