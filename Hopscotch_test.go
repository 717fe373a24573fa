package ddscdr

import "testing"

// This file is a white-box test (package ddscdr, not ddscdr_test) because
// hopEntry and the table/insert internals it exercises are unexported; the
// rest of the suite stays in the external ddscdr_test package per the
// teacher's own convention.

// TestFindFreeSlotReturnsWrappedDistance pins down the exact quantity the
// insert path depends on: when the next free slot sits before start in raw
// index terms because the scan wrapped past the end of the ring, the
// reported distance must still be the short forward distance, not a value
// derived from subtracting the raw indices (which underflows).
func TestFindFreeSlotReturnsWrappedDistance(t *testing.T) {
	tbl := newHopTable(64)
	tbl.buckets[62].entry.Store(&hopEntry{hash: 62})
	tbl.buckets[63].entry.Store(&hopEntry{hash: 63})

	idx, dist, ok := findFreeSlot(tbl, 63)
	if !ok {
		t.Fatal("expected a free slot to be found")
	}
	if idx != 0 {
		t.Fatalf("idx = %d, want 0 (the scan wraps past the end of the ring)", idx)
	}
	if dist != 1 {
		t.Fatalf("dist = %d, want 1 (one slot past start)", dist)
	}
}

// TestInsertIntoSetsHopBitAcrossWrapBoundary inserts two entries sharing a
// home bucket at the very end of the table, so the second must land at the
// wrapped index 0. It calls insertInto directly (bypassing Insert's
// resize-and-retry loop) so a regression here cannot be masked by the table
// happening to grow away from the wrap boundary.
func TestInsertIntoSetsHopBitAcrossWrapBoundary(t *testing.T) {
	h := NewHopscotch(64, nil)
	tbl := h.tbl.Load()

	first := &hopEntry{hash: 63}
	if !h.insertInto(tbl, 63, first) {
		t.Fatal("expected the first insert at home bucket 63 to succeed")
	}
	second := &hopEntry{hash: 63}
	if !h.insertInto(tbl, 63, second) {
		t.Fatal("expected the second insert to succeed despite wrapping past index 0")
	}

	if got := tbl.buckets[0].entry.Load(); got != second {
		t.Fatalf("expected the second entry to land at wrapped index 0, got %v", got)
	}
	if hopInfo := tbl.buckets[63].hopInfo; hopInfo != 0b11 {
		t.Fatalf("home bucket hopInfo = %b, want 0b11 (bits 0 and 1 set)", hopInfo)
	}

	found := h.Lookup(63, func(e *hopEntry) bool { return e == second })
	if found != second {
		t.Fatal("Lookup did not find the entry placed at the wrapped index")
	}
}

// TestHopscotchManyInsertsWrapRepeatedly drives the public Insert/Lookup
// path with many entries clustered at a handful of home buckets near the
// end of a minimum-sized table, forcing repeated wraparound before asserting
// every entry is still reachable. The 30 entries land at most 27 slots from
// their home buckets, inside the hop range, so no resize occurs.
func TestHopscotchManyInsertsWrapRepeatedly(t *testing.T) {
	h := NewHopscotch(addRange, nil)

	homes := []uint32{uint32(addRange - 3), uint32(addRange - 2), uint32(addRange - 1)}
	var inserted []*hopEntry
	for round := 0; round < 10; round++ {
		for _, home := range homes {
			e := &hopEntry{hash: home}
			h.Insert(home, e)
			inserted = append(inserted, e)
		}
	}

	for _, e := range inserted {
		target := e
		got := h.Lookup(target.hash, func(c *hopEntry) bool { return c == target })
		if got != target {
			t.Fatalf("lookup for home bucket %d did not find its inserted entry", target.hash)
		}
	}

	if got, want := h.Len(), int64(len(inserted)); got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}
