package feed

import "testing"

func TestDedupKey(t *testing.T) {
	if got := DedupKey("mintA", 1700000000000); got != "mintA|1700000000000" {
		t.Errorf("key = %q", got)
	}
	// Missing timestamp falls back to mint only.
	if got := DedupKey("mintA", 0); got != "mintA" {
		t.Errorf("key = %q", got)
	}
	// Same mint at different timestamps stays distinct.
	if DedupKey("mintA", 1) == DedupKey("mintA", 2) {
		t.Error("expected distinct keys for distinct timestamps")
	}
}

func TestDedupGate_CheckAndMark(t *testing.T) {
	gate := NewDedupGate()

	key := DedupKey("mintA", 1700000000000)
	if gate.CheckAndMark(key) {
		t.Error("first occurrence should not be a duplicate")
	}
	if !gate.CheckAndMark(key) {
		t.Error("second occurrence should be a duplicate")
	}
	if gate.CheckAndMark(DedupKey("mintB", 1700000000000)) {
		t.Error("different mint should not be a duplicate")
	}
	if gate.Len() != 2 {
		t.Errorf("len = %d, want 2", gate.Len())
	}
}
