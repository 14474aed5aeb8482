package validator

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/db"
	"github.com/zeyxx/CYNIC-sub012/operator"
	"github.com/zeyxx/CYNIC-sub012/store"
	"github.com/zeyxx/CYNIC-sub012/types"
)

func sealedBlock(t *testing.T, slot uint64, prevHash string) *block.Block {
	t.Helper()
	b, err := block.AssembleBlock(slot, prevHash, []types.Judgment{
		{JudgmentID: "j1", QScore: 70, Verdict: types.VerdictWag, Timestamp: 1},
	})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	b.Identity = types.LegacyIdentity("cynic-operator")
	if err := b.Seal(); err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	return b
}

func TestValidateAcceptsLinkedBlock(t *testing.T) {
	v := NewBlockValidator(nil, false, nil)
	head := &types.ChainHead{Slot: 4, Hash: "head-hash"}

	result := v.Validate(sealedBlock(t, 5, "head-hash"), head)
	if !result.Accepted {
		t.Errorf("valid block rejected: %s", result.Error)
	}
}

func TestValidateRejectsPrevHashMismatch(t *testing.T) {
	v := NewBlockValidator(nil, false, nil)
	head := &types.ChainHead{Slot: 4, Hash: "head-hash"}

	result := v.Validate(sealedBlock(t, 5, "some-other-hash"), head)
	if result.Accepted {
		t.Fatal("fork block accepted")
	}
	if !strings.Contains(result.Error, "chain mismatch") {
		t.Errorf("unexpected error: %s", result.Error)
	}
	if v.RejectedCount() != 1 {
		t.Errorf("rejected count = %d, want 1", v.RejectedCount())
	}
}

func TestValidateRejectsSlotGap(t *testing.T) {
	v := NewBlockValidator(nil, false, nil)
	head := &types.ChainHead{Slot: 4, Hash: "head-hash"}

	result := v.Validate(sealedBlock(t, 7, "head-hash"), head)
	if result.Accepted {
		t.Fatal("out-of-sequence block accepted")
	}
	if !strings.Contains(result.Error, "chain mismatch") {
		t.Errorf("unexpected error: %s", result.Error)
	}
}

func TestValidateRejectsTamperedHash(t *testing.T) {
	v := NewBlockValidator(nil, false, nil)
	head := &types.ChainHead{Slot: 4, Hash: "head-hash"}

	b := sealedBlock(t, 5, "head-hash")
	// mutate content while keeping the stale hash
	b.Judgments[0].QScore = 99

	result := v.Validate(b, head)
	if result.Accepted {
		t.Fatal("tampered block accepted")
	}
	if !strings.Contains(result.Error, "hash mismatch") {
		t.Errorf("unexpected error: %s", result.Error)
	}
}

func TestValidateChecksRunInOrder(t *testing.T) {
	v := NewBlockValidator(nil, true, nil)
	head := &types.ChainHead{Slot: 4, Hash: "head-hash"}

	// unsigned AND unlinked: the signature failure must win
	b := sealedBlock(t, 9, "bogus")
	result := v.Validate(b, head)
	if result.Accepted {
		t.Fatal("invalid block accepted")
	}
	if !strings.Contains(result.Error, "signature") {
		t.Errorf("signature check should run first, got: %s", result.Error)
	}
	if v.SignatureFailureCount() != 1 {
		t.Errorf("signature failures = %d, want 1", v.SignatureFailureCount())
	}
}

func TestValidateRejectsWithoutHead(t *testing.T) {
	v := NewBlockValidator(nil, false, nil)
	result := v.Validate(sealedBlock(t, 1, "prev"), nil)
	if result.Accepted {
		t.Error("block accepted without a local head")
	}
}

func TestValidateWithRegistry(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	registry, err := operator.NewRegistry(priv, 0)
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}

	v := NewBlockValidator(registry, true, nil)
	head := &types.ChainHead{Slot: 0, Hash: "genesis-hash"}

	b, err := block.AssembleBlock(1, "genesis-hash", nil)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if err := registry.SignBlock(b); err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if err := b.Seal(); err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	if result := v.Validate(b, head); !result.Accepted {
		t.Errorf("signed block rejected: %s", result.Error)
	}

	// legacy identity fails against a registry
	legacy := sealedBlock(t, 1, "genesis-hash")
	if result := v.Validate(legacy, head); result.Accepted {
		t.Error("unsigned block accepted by registry-backed validator")
	}
}

func TestReceiveBlockPersistsAndReturnsHead(t *testing.T) {
	chainStore, err := store.NewChainStore(db.NewMemoryProvider())
	if err != nil {
		t.Fatalf("chain store failed: %v", err)
	}

	genesis, err := block.Genesis("cynic-operator")
	if err != nil {
		t.Fatalf("genesis failed: %v", err)
	}
	if err := chainStore.StorePoJBlock(genesis); err != nil {
		t.Fatalf("store genesis failed: %v", err)
	}

	v := NewBlockValidator(nil, false, chainStore)
	b := sealedBlock(t, 1, genesis.Hash)

	head, result := v.ReceiveBlock(b, genesis.Head())
	if !result.Accepted {
		t.Fatalf("peer block rejected: %s", result.Error)
	}
	if head.Slot != 1 || head.Hash != b.Hash {
		t.Errorf("unexpected new head: %+v", head)
	}

	stored, err := chainStore.GetPoJBlockBySlot(1)
	if err != nil {
		t.Fatalf("get block failed: %v", err)
	}
	if stored == nil || stored.Hash != b.Hash {
		t.Error("accepted block was not persisted")
	}
}

func TestReceiveBlockRejectsWithoutPersistence(t *testing.T) {
	v := NewBlockValidator(nil, false, nil)
	head := &types.ChainHead{Slot: 0, Hash: "genesis-hash"}

	newHead, result := v.ReceiveBlock(sealedBlock(t, 1, "genesis-hash"), head)
	if result.Accepted || newHead != nil {
		t.Error("block accepted without persistence")
	}
}
