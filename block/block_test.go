package block

import (
	"testing"

	"github.com/zeyxx/CYNIC-sub012/merkle"
	"github.com/zeyxx/CYNIC-sub012/types"
)

func TestGenesisBlock(t *testing.T) {
	g, err := Genesis("cynic-operator")
	if err != nil {
		t.Fatalf("genesis failed: %v", err)
	}

	if g.Slot != 0 {
		t.Errorf("genesis slot = %d, want 0", g.Slot)
	}
	if want := merkle.HashString(GenesisSeed); g.PrevHash != want {
		t.Errorf("genesis prev_hash = %s, want %s", g.PrevHash, want)
	}
	if want := merkle.HashString(merkle.EmptyTreePlaceholder); g.JudgmentsRoot != want {
		t.Errorf("genesis judgments_root = %s, want %s", g.JudgmentsRoot, want)
	}
	if len(g.Judgments) != 0 {
		t.Errorf("genesis should carry no judgments, got %d", len(g.Judgments))
	}
	if g.Hash == "" {
		t.Error("genesis should be sealed")
	}
	if g.Identity.IsSigned() {
		t.Error("genesis identity should be legacy")
	}

	computed, err := g.ComputeHash()
	if err != nil {
		t.Fatalf("compute hash failed: %v", err)
	}
	if computed != g.Hash {
		t.Errorf("sealed hash %s does not match recomputed %s", g.Hash, computed)
	}
}

func TestSingleJudgmentRootIsLeafHash(t *testing.T) {
	j := types.Judgment{JudgmentID: "j1", QScore: 70, Verdict: types.VerdictWag, Timestamp: 1}

	b, err := AssembleBlock(1, "prev", []types.Judgment{j})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	leaf, err := JudgmentHash(j)
	if err != nil {
		t.Fatalf("judgment hash failed: %v", err)
	}
	if b.JudgmentsRoot != leaf {
		t.Errorf("single-judgment root = %s, want leaf hash %s", b.JudgmentsRoot, leaf)
	}
}

func TestSealDetectsTampering(t *testing.T) {
	b, err := AssembleBlock(1, "prev", []types.Judgment{
		{JudgmentID: "j1", QScore: 50, Verdict: types.VerdictGrowl, Timestamp: 1},
	})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	b.Identity = types.LegacyIdentity("cynic-operator")
	if err := b.Seal(); err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	b.Judgments[0].QScore = 99

	computed, err := b.ComputeHash()
	if err != nil {
		t.Fatalf("compute hash failed: %v", err)
	}
	if computed == b.Hash {
		t.Error("tampered block should not match its sealed hash")
	}
}

func TestHashCoversIdentity(t *testing.T) {
	assemble := func() *Block {
		b, err := AssembleBlock(1, "prev", nil)
		if err != nil {
			t.Fatalf("assemble failed: %v", err)
		}
		b.Timestamp = 1000
		return b
	}

	legacy := assemble()
	legacy.Identity = types.LegacyIdentity("cynic-operator")
	if err := legacy.Seal(); err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	signed := assemble()
	signed.Identity = types.SignedIdentity("op", "pub", "sig")
	if err := signed.Seal(); err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	if legacy.Hash == signed.Hash {
		t.Error("hash should cover the identity variant")
	}
}

func TestSigningPayloadExcludesIdentity(t *testing.T) {
	b, err := AssembleBlock(3, "prev", nil)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	b.Timestamp = 1000

	before, err := b.SigningPayload()
	if err != nil {
		t.Fatalf("signing payload failed: %v", err)
	}

	b.Identity = types.SignedIdentity("op", "pub", "sig")
	b.Hash = "whatever"

	after, err := b.SigningPayload()
	if err != nil {
		t.Fatalf("signing payload failed: %v", err)
	}
	if string(before) != string(after) {
		t.Error("signing payload must not depend on identity or hash")
	}
}

func TestHead(t *testing.T) {
	b, err := AssembleBlock(7, "prev", []types.Judgment{
		{JudgmentID: "j1", QScore: 90, Verdict: types.VerdictHowl, Timestamp: 1},
		{JudgmentID: "j2", QScore: 10, Verdict: types.VerdictBark, Timestamp: 2},
	})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	b.Identity = types.LegacyIdentity("cynic-operator")
	if err := b.Seal(); err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	head := b.Head()
	if head.Slot != 7 || head.Hash != b.Hash || head.PrevHash != "prev" || head.JudgmentCount != 2 {
		t.Errorf("unexpected head: %+v", head)
	}
}
