package store

import (
	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/types"
)

// Capabilities declares which subsystems a persistence backend supports.
type Capabilities struct {
	PoJChain bool
}

// ChainStats is an aggregate snapshot of the persisted chain.
type ChainStats struct {
	BlockCount     uint64 `json:"block_count"`
	LatestSlot     uint64 `json:"latest_slot"`
	HeadHash       string `json:"head_hash"`
	TotalJudgments uint64 `json:"total_judgments"`
}

// BrokenLink describes one linkage or integrity failure found by a chain
// re-walk.
type BrokenLink struct {
	Slot   uint64 `json:"slot"`
	Reason string `json:"reason"`
}

// VerifyReport is the result of a full chain re-walk.
type VerifyReport struct {
	Valid         bool         `json:"valid"`
	BlocksChecked uint64       `json:"blocks_checked"`
	BrokenLinks   []BrokenLink `json:"broken_links,omitempty"`
}

// PersistenceManager is the durable storage collaborator of the PoJ chain.
// One record per block keyed by slot and hash, with a current-head lookup.
type PersistenceManager interface {
	Capabilities() Capabilities

	// GetPoJHead returns the head descriptor of the highest stored slot,
	// or nil when no block has been stored yet.
	GetPoJHead() (*types.ChainHead, error)

	// StorePoJBlock persists a sealed block. Blocks are immutable: storing
	// an already-occupied slot is an error.
	StorePoJBlock(b *block.Block) error

	// GetPoJBlockBySlot returns the block at slot, or nil when absent.
	GetPoJBlockBySlot(slot uint64) (*block.Block, error)

	// GetRecentPoJBlocks returns up to limit most recent blocks in
	// slot-ascending order.
	GetRecentPoJBlocks(limit int) ([]*block.Block, error)

	// GetPoJStats aggregates stored chain statistics.
	GetPoJStats() (*ChainStats, error)

	// VerifyPoJChain re-walks the full chain checking hash integrity and
	// linkage.
	VerifyPoJChain() (*VerifyReport, error)
}
