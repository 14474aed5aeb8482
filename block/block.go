package block

import (
	"fmt"
	"time"

	"github.com/zeyxx/CYNIC-sub012/jsonx"
	"github.com/zeyxx/CYNIC-sub012/merkle"
	"github.com/zeyxx/CYNIC-sub012/types"
)

// GenesisSeed is hashed to produce the prev_hash of slot 0.
const GenesisSeed = "CYNIC:POJ:GENESIS"

// Block is one batch of judgments on the PoJ chain. Hash is computed over
// every other field and set last; once persisted a block is immutable.
type Block struct {
	Slot          uint64           `json:"slot"`
	PrevHash      string           `json:"prev_hash"`
	JudgmentsRoot string           `json:"judgments_root"`
	Judgments     []types.Judgment `json:"judgments"`
	Timestamp     int64            `json:"timestamp"`
	Identity      types.Identity   `json:"identity"`
	Hash          string           `json:"hash,omitempty"`
}

// hashPayload fixes the canonical field set and order for block hashing.
type hashPayload struct {
	Slot          uint64           `json:"slot"`
	PrevHash      string           `json:"prev_hash"`
	JudgmentsRoot string           `json:"judgments_root"`
	Judgments     []types.Judgment `json:"judgments"`
	Timestamp     int64            `json:"timestamp"`
	Identity      types.Identity   `json:"identity"`
}

// signingPayload is the pre-identity content an operator signs.
type signingPayload struct {
	Slot          uint64           `json:"slot"`
	PrevHash      string           `json:"prev_hash"`
	JudgmentsRoot string           `json:"judgments_root"`
	Judgments     []types.Judgment `json:"judgments"`
	Timestamp     int64            `json:"timestamp"`
}

// JudgmentHash returns the canonical hash of a single judgment record.
func JudgmentHash(j types.Judgment) (string, error) {
	return merkle.HashJSON(j)
}

// JudgmentLeaves hashes every judgment in order into merkle leaves.
func JudgmentLeaves(judgments []types.Judgment) ([]string, error) {
	leaves := make([]string, 0, len(judgments))
	for _, j := range judgments {
		h, err := JudgmentHash(j)
		if err != nil {
			return nil, fmt.Errorf("failed to hash judgment %s: %w", j.JudgmentID, err)
		}
		leaves = append(leaves, h)
	}
	return leaves, nil
}

// AssembleBlock builds an unsealed candidate block on top of the given head.
// The caller stamps an identity and then seals it.
func AssembleBlock(slot uint64, prevHash string, judgments []types.Judgment) (*Block, error) {
	leaves, err := JudgmentLeaves(judgments)
	if err != nil {
		return nil, err
	}
	return &Block{
		Slot:          slot,
		PrevHash:      prevHash,
		JudgmentsRoot: merkle.Root(leaves),
		Judgments:     judgments,
		Timestamp:     time.Now().UnixMilli(),
	}, nil
}

// Genesis builds the sealed slot-0 block with the fixed seed prev_hash and
// the empty-tree judgments root.
func Genesis(legacyPrefix string) (*Block, error) {
	b := &Block{
		Slot:          0,
		PrevHash:      merkle.HashString(GenesisSeed),
		JudgmentsRoot: merkle.Root(nil),
		Judgments:     []types.Judgment{},
		Timestamp:     time.Now().UnixMilli(),
		Identity:      types.LegacyIdentity(legacyPrefix),
	}
	if err := b.Seal(); err != nil {
		return nil, err
	}
	return b, nil
}

// SigningPayload returns the canonical bytes covered by an operator
// signature: every field except identity and hash.
func (b *Block) SigningPayload() ([]byte, error) {
	return canonicalBytes(signingPayload{
		Slot:          b.Slot,
		PrevHash:      b.PrevHash,
		JudgmentsRoot: b.JudgmentsRoot,
		Judgments:     b.Judgments,
		Timestamp:     b.Timestamp,
	})
}

// ComputeHash recomputes the canonical hash over every field except Hash.
func (b *Block) ComputeHash() (string, error) {
	data, err := canonicalBytes(hashPayload{
		Slot:          b.Slot,
		PrevHash:      b.PrevHash,
		JudgmentsRoot: b.JudgmentsRoot,
		Judgments:     b.Judgments,
		Timestamp:     b.Timestamp,
		Identity:      b.Identity,
	})
	if err != nil {
		return "", err
	}
	return merkle.HashHex(data), nil
}

// Seal computes and sets the block hash. Identity must already be stamped.
func (b *Block) Seal() error {
	hash, err := b.ComputeHash()
	if err != nil {
		return fmt.Errorf("failed to seal block %d: %w", b.Slot, err)
	}
	b.Hash = hash
	return nil
}

// Head returns the chain-head descriptor this block produces once accepted.
func (b *Block) Head() *types.ChainHead {
	return &types.ChainHead{
		Slot:          b.Slot,
		Hash:          b.Hash,
		PrevHash:      b.PrevHash,
		JudgmentCount: len(b.Judgments),
	}
}

// canonicalBytes encodes v with jsonx; struct encoding fixes the field order
// so digests are stable across nodes.
func canonicalBytes(v interface{}) ([]byte, error) {
	return jsonx.Marshal(v)
}
