package anchor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/events"
	"github.com/zeyxx/CYNIC-sub012/types"
)

type failingQueue struct {
	err error
}

func (q *failingQueue) Enqueue(id string, payload Payload) error {
	return q.err
}

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

func drainFor(ch chan events.PoJEvent, d time.Duration) events.PoJEvent {
	select {
	case ev := <-ch:
		return ev
	case <-time.After(d):
		return nil
	}
}

func TestAnchorBlockQueuesPayload(t *testing.T) {
	m := NewManager(nil)
	queue := NewMemoryQueue()
	m.SetQueue(queue)

	b := testBlock(t, 3)
	m.AnchorBlock(b)

	entry, ok := m.Status(b.Hash)
	if !ok {
		t.Fatal("block not tracked")
	}
	if entry.Status != StatusQueued {
		t.Errorf("status = %s, want %s", entry.Status, StatusQueued)
	}

	queued := queue.Drain()
	if len(queued) != 1 {
		t.Fatalf("queued entries = %d, want 1", len(queued))
	}
	payload := queued[0].Payload
	if !strings.HasPrefix(payload.Memo, MemoPrefix) {
		t.Errorf("memo %s missing prefix %s", payload.Memo, MemoPrefix)
	}
	if payload.Slot != 3 || payload.MerkleRoot != b.JudgmentsRoot || payload.JudgmentCount != 1 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestAnchorBlockWithoutQueueFails(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()

	m := NewManager(bus)
	b := testBlock(t, 1)
	m.AnchorBlock(b)

	entry, _ := m.Status(b.Hash)
	if entry.Status != StatusFailed {
		t.Errorf("status = %s, want %s", entry.Status, StatusFailed)
	}

	ev := drainFor(ch, time.Second)
	if ev == nil {
		t.Fatal("no AnchorFailed event published")
	}
	if _, ok := ev.(*events.AnchorFailed); !ok {
		t.Errorf("unexpected event type %T", ev)
	}
}

func TestAnchorBlockEnqueueErrorFails(t *testing.T) {
	m := NewManager(nil)
	m.SetQueue(&failingQueue{err: errors.New("queue down")})

	b := testBlock(t, 1)
	m.AnchorBlock(b)

	entry, _ := m.Status(b.Hash)
	if entry.Status != StatusFailed {
		t.Errorf("status = %s, want %s", entry.Status, StatusFailed)
	}
}

func TestHandleAnchorCompleteSuccess(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()

	m := NewManager(bus)
	m.SetQueue(NewMemoryQueue())

	b := testBlock(t, 7)
	m.AnchorBlock(b)

	m.HandleAnchorComplete(
		[]BatchItem{{Slot: 7, MerkleRoot: b.JudgmentsRoot}},
		Result{OK: true, Signature: "tx-sig"},
	)

	entry, _ := m.Status(b.Hash)
	if entry.Status != StatusAnchored {
		t.Errorf("status = %s, want %s", entry.Status, StatusAnchored)
	}
	if entry.Signature != "tx-sig" {
		t.Errorf("signature = %s, want tx-sig", entry.Signature)
	}
	if entry.AnchoredAt == 0 {
		t.Error("anchored timestamp not set")
	}

	ev := drainFor(ch, time.Second)
	anchored, ok := ev.(*events.BlockAnchored)
	if !ok {
		t.Fatalf("unexpected event type %T", ev)
	}
	if anchored.BlockSlot() != 7 || anchored.Signature() != "tx-sig" {
		t.Errorf("unexpected event payload: slot=%d sig=%s", anchored.BlockSlot(), anchored.Signature())
	}
}

func TestHandleAnchorCompleteFailure(t *testing.T) {
	m := NewManager(nil)
	m.SetQueue(NewMemoryQueue())

	b := testBlock(t, 2)
	m.AnchorBlock(b)

	m.HandleAnchorComplete(
		[]BatchItem{{Slot: 2, MerkleRoot: b.JudgmentsRoot}},
		Result{OK: false, Error: "submission reverted"},
	)

	entry, _ := m.Status(b.Hash)
	if entry.Status != StatusFailed {
		t.Errorf("status = %s, want %s", entry.Status, StatusFailed)
	}
}

func TestHandleAnchorCompleteIgnoresUntrackedSlot(t *testing.T) {
	m := NewManager(nil)
	// must not panic or invent state
	m.HandleAnchorComplete([]BatchItem{{Slot: 99}}, Result{OK: true, Signature: "sig"})
	if m.Count() != 0 {
		t.Errorf("tracked count = %d, want 0", m.Count())
	}
}

func TestMarkPendingAndCounts(t *testing.T) {
	m := NewManager(nil)
	m.SetQueue(NewMemoryQueue())

	pendingBlock := testBlock(t, 1)
	queuedBlock := testBlock(t, 2)
	m.MarkPending(pendingBlock)
	m.AnchorBlock(queuedBlock)

	if m.Count() != 2 {
		t.Errorf("count = %d, want 2", m.Count())
	}
	if m.PendingCount() != 2 {
		t.Errorf("pending count = %d, want 2", m.PendingCount())
	}

	m.HandleAnchorComplete([]BatchItem{{Slot: 2}}, Result{OK: true, Signature: "sig"})
	if m.PendingCount() != 1 {
		t.Errorf("pending count after completion = %d, want 1", m.PendingCount())
	}
}

func TestMemoryQueueCompletionCallback(t *testing.T) {
	queue := NewMemoryQueue()

	var gotBatch []BatchItem
	var gotResult Result
	queue.OnAnchorComplete(func(batch []BatchItem, result Result) {
		gotBatch = batch
		gotResult = result
	})

	queue.Complete([]BatchItem{{Slot: 5, MerkleRoot: "root"}}, Result{OK: true, Signature: "sig"})

	if len(gotBatch) != 1 || gotBatch[0].Slot != 5 {
		t.Errorf("unexpected batch: %+v", gotBatch)
	}
	if !gotResult.OK || gotResult.Signature != "sig" {
		t.Errorf("unexpected result: %+v", gotResult)
	}
}
