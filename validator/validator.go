package validator

import (
	"fmt"
	"sync/atomic"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/logx"
	"github.com/zeyxx/CYNIC-sub012/monitoring"
	"github.com/zeyxx/CYNIC-sub012/operator"
	"github.com/zeyxx/CYNIC-sub012/store"
	"github.com/zeyxx/CYNIC-sub012/types"
)

// ValidationResult is the structured outcome of validating a peer block.
// Failures are data, never panics or returned errors.
type ValidationResult struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func accepted() ValidationResult {
	return ValidationResult{Accepted: true}
}

func rejected(format string, args ...interface{}) ValidationResult {
	return ValidationResult{Accepted: false, Error: fmt.Sprintf(format, args...)}
}

// BlockValidator validates blocks received from peers: signature, chain
// linkage, hash integrity, in that order, short-circuiting on the first
// failure. Counters are observability only.
type BlockValidator struct {
	registry         *operator.Registry
	requireSignature bool
	persistence      store.PersistenceManager

	rejectedCount     atomic.Uint64
	signatureFailures atomic.Uint64
}

// NewBlockValidator creates a validator. registry may be nil: with
// requireSignature set, only signature presence is checked; with it unset,
// the signature check is skipped entirely.
func NewBlockValidator(registry *operator.Registry, requireSignature bool, persistence store.PersistenceManager) *BlockValidator {
	return &BlockValidator{
		registry:         registry,
		requireSignature: requireSignature,
		persistence:      persistence,
	}
}

// Validate runs the three ordered checks against the current head.
func (v *BlockValidator) Validate(b *block.Block, head *types.ChainHead) ValidationResult {
	if b == nil {
		return v.reject(monitoring.BlockRejectedUnknown, rejected("block is nil"))
	}

	// 1. signature
	if v.registry != nil {
		if err := v.registry.VerifyBlock(b); err != nil {
			v.signatureFailures.Add(1)
			return v.reject(monitoring.BlockInvalidSignature, rejected("signature check failed: %v", err))
		}
	} else if v.requireSignature && !b.Identity.IsSigned() {
		v.signatureFailures.Add(1)
		return v.reject(monitoring.BlockInvalidSignature, rejected("block %d carries no signature", b.Slot))
	}

	// 2. chain linkage: both conditions, to reject forks and replays
	if head == nil {
		return v.reject(monitoring.BlockChainMismatch, rejected("no local head to link against"))
	}
	if b.PrevHash != head.Hash {
		return v.reject(monitoring.BlockChainMismatch, rejected("chain mismatch: prev_hash %s does not match head hash %s", b.PrevHash, head.Hash))
	}
	if b.Slot != head.Slot+1 {
		return v.reject(monitoring.BlockChainMismatch, rejected("chain mismatch: slot %d does not follow head slot %d", b.Slot, head.Slot))
	}

	// 3. hash integrity
	computed, err := b.ComputeHash()
	if err != nil {
		return v.reject(monitoring.BlockRejectedUnknown, rejected("failed to recompute hash: %v", err))
	}
	if computed != b.Hash {
		return v.reject(monitoring.BlockHashMismatch, rejected("hash mismatch: computed %s, claimed %s", computed, b.Hash))
	}

	return accepted()
}

// ReceiveBlock validates a peer block against head, persists it on success
// and returns the new head descriptor.
func (v *BlockValidator) ReceiveBlock(b *block.Block, head *types.ChainHead) (*types.ChainHead, ValidationResult) {
	result := v.Validate(b, head)
	if !result.Accepted {
		logx.Warn("VALIDATOR", "Rejected peer block: ", result.Error)
		return nil, result
	}

	if v.persistence == nil || !v.persistence.Capabilities().PoJChain {
		return nil, rejected("persistence unavailable")
	}

	if err := v.persistence.StorePoJBlock(b); err != nil {
		return nil, rejected("failed to persist peer block %d: %v", b.Slot, err)
	}

	logx.Info("VALIDATOR", "Accepted peer block at slot ", b.Slot)
	return b.Head(), accepted()
}

func (v *BlockValidator) reject(reason monitoring.BlockRejectedReason, result ValidationResult) ValidationResult {
	v.rejectedCount.Add(1)
	monitoring.RecordRejectedBlock(reason)
	return result
}

// RejectedCount returns the total number of rejected blocks.
func (v *BlockValidator) RejectedCount() uint64 {
	return v.rejectedCount.Load()
}

// SignatureFailureCount returns the total number of signature rejections.
func (v *BlockValidator) SignatureFailureCount() uint64 {
	return v.signatureFailures.Load()
}
