package ddscdr_test

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/sirgallo/ddscdr"
)

// TestTkMapFindSameKeyReturnsSameIID reproduces the map-identity property:
// two Find(create=true) calls for samples carrying the same key resolve to
// the same instance, and once every reference is released a subsequent
// Find(create=true) for that key mints a fresh IID.
func TestTkMapFindSameKeyReturnsSameIID(t *testing.T) {
	desc := buildPointDescriptor(t)
	m := ddscdr.NewTkMap(ddscdr.TkMapOpts{})

	sample1 := ddscdr.NewSample(desc)
	sample1.SetU32(0, 42)
	ss1 := wrapAsSerializedSample(t, desc, sample1)

	inst1, err := m.Find(ss1, true)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	sample2 := ddscdr.NewSample(desc)
	sample2.SetU32(0, 42)
	ss2 := wrapAsSerializedSample(t, desc, sample2)

	inst2, err := m.Find(ss2, true)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if inst1.Iid != inst2.Iid {
		t.Fatalf("expected same IID for the same key, got %d and %d", inst1.Iid, inst2.Iid)
	}

	iid, ok := m.LookupIid(ss1)
	if !ok || iid != inst1.Iid {
		t.Fatalf("LookupIid = (%d,%v), want (%d,true)", iid, ok, inst1.Iid)
	}

	m.InstanceUnref(inst1)
	m.InstanceUnref(inst2)

	if _, ok := m.LookupIid(ss1); ok {
		t.Fatal("expected the instance to be gone after its last unref")
	}

	sample3 := ddscdr.NewSample(desc)
	sample3.SetU32(0, 42)
	ss3 := wrapAsSerializedSample(t, desc, sample3)

	inst3, err := m.Find(ss3, true)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if inst3.Iid == inst1.Iid {
		t.Fatal("expected a fresh IID once the prior instance was torn down")
	}
	m.InstanceUnref(inst3)
}

func TestTkMapFindWithoutCreateReturnsNilForAbsentKey(t *testing.T) {
	desc := buildPointDescriptor(t)
	m := ddscdr.NewTkMap(ddscdr.TkMapOpts{})

	sample := ddscdr.NewSample(desc)
	sample.SetU32(0, 99)
	ss := wrapAsSerializedSample(t, desc, sample)

	inst, err := m.Find(ss, false)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if inst != nil {
		t.Fatal("expected nil instance for an absent key with create=false")
	}
}

func TestTkMapDistinctKeysGetDistinctIIDs(t *testing.T) {
	desc := buildPointDescriptor(t)
	m := ddscdr.NewTkMap(ddscdr.TkMapOpts{})

	sampleA := ddscdr.NewSample(desc)
	sampleA.SetU32(0, 1)
	ssA := wrapAsSerializedSample(t, desc, sampleA)
	instA, err := m.Find(ssA, true)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	sampleB := ddscdr.NewSample(desc)
	sampleB.SetU32(0, 2)
	ssB := wrapAsSerializedSample(t, desc, sampleB)
	instB, err := m.Find(ssB, true)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	if instA.Iid == instB.Iid {
		t.Fatal("expected distinct keys to get distinct IIDs")
	}
	if got := m.FindByID(instA.Iid); got != instA {
		t.Fatal("FindByID did not return the instance just created")
	}

	m.InstanceUnref(instA)
	m.InstanceUnref(instB)
}

func TestTkMapGetKeyRoundTrips(t *testing.T) {
	desc := buildPointDescriptor(t)
	m := ddscdr.NewTkMap(ddscdr.TkMapOpts{})

	sample := ddscdr.NewSample(desc)
	sample.SetU32(0, 7)
	ss := wrapAsSerializedSample(t, desc, sample)

	inst, err := m.Find(ss, true)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	order := binary.ByteOrder(binary.BigEndian)
	if ddscdr.HostIsLittleEndian() {
		order = binary.LittleEndian
	}
	out := ddscdr.NewOctetStream(order)
	found, err := m.GetKey(inst.Iid, out)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if !found {
		t.Fatal("expected GetKey to find the instance")
	}
	if got := order.Uint32(out.Bytes()[0:4]); got != 7 {
		t.Fatalf("GetKey bytes = %d, want 7", got)
	}
	m.InstanceUnref(inst)
}

// TestTkMapConcurrentFindUnref exercises the "concurrent map correctness"
// property: many goroutines hammer Find(create=true)/InstanceUnref across a
// small set of shared keys at once, which is exactly the access pattern that
// races InstanceRef's CAS loop against teardown's DELETE-bit install and
// against Hopscotch resize. It asserts no panics/deadlocks and that the map
// is left in a usable state, rather than a specific interleaving outcome.
func TestTkMapConcurrentFindUnref(t *testing.T) {
	desc := buildPointDescriptor(t)
	m := ddscdr.NewTkMap(ddscdr.TkMapOpts{})

	const keys = 8
	const goroutines = 16
	const itersPerGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < itersPerGoroutine; i++ {
				key := uint32((seed + i) % keys)
				sample := ddscdr.NewSample(desc)
				sample.SetU32(0, key)
				ss := wrapAsSerializedSample(t, desc, sample)

				inst, err := m.Find(ss, true)
				if err != nil {
					t.Errorf("Find: %v", err)
					return
				}
				if inst == nil {
					t.Errorf("Find(create=true) returned a nil instance")
					return
				}
				m.InstanceUnref(inst)
			}
		}(g)
	}
	wg.Wait()

	for key := uint32(0); key < keys; key++ {
		sample := ddscdr.NewSample(desc)
		sample.SetU32(0, key)
		ss := wrapAsSerializedSample(t, desc, sample)

		inst, err := m.Find(ss, true)
		if err != nil {
			t.Fatalf("final Find for key %d: %v", key, err)
		}
		if inst == nil {
			t.Fatalf("final Find(create=true) for key %d returned nil", key)
		}
		m.InstanceUnref(inst)
	}
}
