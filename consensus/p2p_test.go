package consensus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/events"
	"github.com/zeyxx/CYNIC-sub012/jsonx"
	"github.com/zeyxx/CYNIC-sub012/types"
)

func testBlock(t *testing.T, slot uint64) *block.Block {
	t.Helper()
	b, err := block.AssembleBlock(slot, "prev", []types.Judgment{
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

func TestWaitForFinalityTimeoutFallback(t *testing.T) {
	c := NewP2PConsensus(nil, "")
	defer c.Close()

	b := testBlock(t, 1)
	start := time.Now()
	result := c.WaitForFinality(b, 100*time.Millisecond)
	elapsed := time.Since(start)

	if result.Finalized {
		t.Error("timeout wait should not report finalized")
	}
	if !result.Fallback {
		t.Error("timeout wait should report fallback")
	}
	if elapsed < 100*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("wait took %v, want ~100ms", elapsed)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending waits = %d, want 0", c.PendingCount())
	}
}

func TestWaitForFinalityResolvedByEvent(t *testing.T) {
	bus := events.NewEventBus()
	c := NewP2PConsensus(bus, "")
	defer c.Close()

	b := testBlock(t, 3)

	done := make(chan FinalityResult, 1)
	go func() {
		done <- c.WaitForFinality(b, 5*time.Second)
	}()

	// wait for the pending entry to register before publishing
	for i := 0; i < 100 && c.PendingCount() == 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	bus.Publish(events.NewBlockFinality(b.Hash, b.Slot, FinalityStatusFinalized, 2))

	select {
	case result := <-done:
		if !result.Finalized {
			t.Error("event wait should report finalized")
		}
		if result.Fallback || result.Aborted {
			t.Errorf("unexpected result flags: %+v", result)
		}
		if result.Slot != 3 || result.Confirmations != 2 {
			t.Errorf("unexpected result payload: %+v", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("wait never resolved")
	}
}

func TestNonFinalizedStatusIgnored(t *testing.T) {
	bus := events.NewEventBus()
	c := NewP2PConsensus(bus, "")
	defer c.Close()

	b := testBlock(t, 4)

	done := make(chan FinalityResult, 1)
	go func() {
		done <- c.WaitForFinality(b, 300*time.Millisecond)
	}()

	for i := 0; i < 100 && c.PendingCount() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	bus.Publish(events.NewBlockFinality(b.Hash, b.Slot, "pending", 0))

	result := <-done
	if result.Finalized {
		t.Error("non-finalized status must not resolve the wait as finalized")
	}
	if !result.Fallback {
		t.Error("wait should have fallen back on timeout")
	}
}

func TestDuplicateFinalityEventsHarmless(t *testing.T) {
	bus := events.NewEventBus()
	c := NewP2PConsensus(bus, "")
	defer c.Close()

	b := testBlock(t, 5)
	// no pending wait registered: events must be ignored
	bus.Publish(events.NewBlockFinality(b.Hash, b.Slot, FinalityStatusFinalized, 1))
	bus.Publish(events.NewBlockFinality(b.Hash, b.Slot, FinalityStatusFinalized, 1))

	time.Sleep(50 * time.Millisecond)
	if c.PendingCount() != 0 {
		t.Errorf("pending waits = %d, want 0", c.PendingCount())
	}
}

func TestCloseAbortsPendingWaits(t *testing.T) {
	c := NewP2PConsensus(nil, "")
	b := testBlock(t, 6)

	done := make(chan FinalityResult, 1)
	go func() {
		done <- c.WaitForFinality(b, 30*time.Second)
	}()

	for i := 0; i < 100 && c.PendingCount() == 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	c.Close()

	select {
	case result := <-done:
		if !result.Aborted {
			t.Errorf("closed wait should report aborted, got %+v", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close did not resolve the pending wait")
	}

	// waits after close abort immediately
	if result := c.WaitForFinality(testBlock(t, 7), time.Second); !result.Aborted {
		t.Errorf("wait after close should abort, got %+v", result)
	}
}

func TestProposePostsDescriptor(t *testing.T) {
	var received ProposePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/propose" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := jsonx.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		jsonx.NewEncoder(w).Encode(ProposeAck{Accepted: true, Slot: received.Slot})
	}))
	defer server.Close()

	c := NewP2PConsensus(nil, server.URL)
	defer c.Close()

	b := testBlock(t, 9)
	ack := c.Propose(context.Background(), b)
	if ack == nil {
		t.Fatal("propose returned nil against a healthy peer")
	}
	if !ack.Accepted || ack.Slot != 9 {
		t.Errorf("unexpected ack: %+v", ack)
	}

	if received.Type != ProposeType {
		t.Errorf("payload type = %s, want %s", received.Type, ProposeType)
	}
	if received.Hash != b.Hash || received.JudgmentsRoot != b.JudgmentsRoot || received.JudgmentCount != 1 {
		t.Errorf("unexpected payload: %+v", received)
	}
}

func TestProposeBestEffort(t *testing.T) {
	c := NewP2PConsensus(nil, "")
	defer c.Close()
	if ack := c.Propose(context.Background(), testBlock(t, 1)); ack != nil {
		t.Error("propose without an endpoint should return nil")
	}

	// unreachable peer: nil, never an error or panic
	c.SetNode("http://127.0.0.1:1")
	if ack := c.Propose(context.Background(), testBlock(t, 2)); ack != nil {
		t.Error("propose against an unreachable peer should return nil")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rejected", http.StatusUnprocessableEntity)
	}))
	defer server.Close()
	c.SetNode(server.URL)
	if ack := c.Propose(context.Background(), testBlock(t, 3)); ack != nil {
		t.Error("propose rejected by the peer should return nil")
	}
}
