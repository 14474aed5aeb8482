package merkle

import (
	"testing"
)

func TestRootEmptySet(t *testing.T) {
	got := Root(nil)
	want := HashString(EmptyTreePlaceholder)
	if got != want {
		t.Errorf("empty root = %s, want %s", got, want)
	}
	if got != Root([]string{}) {
		t.Errorf("nil and empty slice should produce the same root")
	}
}

func TestRootSingleLeaf(t *testing.T) {
	leaf := HashString("only")
	if got := Root([]string{leaf}); got != leaf {
		t.Errorf("single leaf root = %s, want leaf unchanged %s", got, leaf)
	}
}

func TestRootDeterministic(t *testing.T) {
	leaves := []string{HashString("a"), HashString("b"), HashString("c"), HashString("d")}
	first := Root(leaves)
	for i := 0; i < 10; i++ {
		if got := Root(leaves); got != first {
			t.Fatalf("root not deterministic: %s vs %s", got, first)
		}
	}
}

func TestRootOddLeafDuplication(t *testing.T) {
	a, b, c := HashString("a"), HashString("b"), HashString("c")

	// odd level duplicates the last leaf before pairing
	want := HashString(HashString(a+b) + HashString(c+c))
	if got := Root([]string{a, b, c}); got != want {
		t.Errorf("odd root = %s, want %s", got, want)
	}
}

func TestRootTwoLeaves(t *testing.T) {
	a, b := HashString("a"), HashString("b")
	if got, want := Root([]string{a, b}), HashString(a+b); got != want {
		t.Errorf("pair root = %s, want %s", got, want)
	}
}

func TestRootOrderSensitive(t *testing.T) {
	a, b := HashString("a"), HashString("b")
	if Root([]string{a, b}) == Root([]string{b, a}) {
		t.Error("root should depend on leaf order")
	}
}

func TestRootDoesNotMutateInput(t *testing.T) {
	leaves := []string{HashString("a"), HashString("b"), HashString("c")}
	snapshot := make([]string, len(leaves))
	copy(snapshot, leaves)

	Root(leaves)

	for i := range leaves {
		if leaves[i] != snapshot[i] {
			t.Fatalf("input leaf %d mutated", i)
		}
	}
}

func TestHashJSONStable(t *testing.T) {
	v := struct {
		A string `json:"a"`
		B int    `json:"b"`
	}{A: "x", B: 7}

	first, err := HashJSON(v)
	if err != nil {
		t.Fatalf("HashJSON failed: %v", err)
	}
	second, err := HashJSON(v)
	if err != nil {
		t.Fatalf("HashJSON failed: %v", err)
	}
	if first != second {
		t.Errorf("HashJSON not stable: %s vs %s", first, second)
	}
}
