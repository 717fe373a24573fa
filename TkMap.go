package ddscdr

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

//============================================= ddscdr TkMap (InstanceMap)

const (
	instanceDeleteBit  = uint32(0x80000000)
	instanceCountMask  = uint32(0x0FFFFFFF)
)

// Instance is one entry of a TkMap: a stable 64-bit identity bound to the
// SerializedSample that supplies its key representation, spec §3 "Instance
// (in tkmap)".
type Instance struct {
	Iid    uint64
	Sample *SerializedSample

	// refc packs a 32-bit atomic count with a high DELETE bit (0x80000000);
	// DELETE set means the instance is being torn down and must never be
	// handed out again (spec §4.5.4).
	refc atomic.Uint32
}

// Refcount reports the live reference count, or -1 if the instance is
// marked DELETE.
func (inst *Instance) Refcount() int32 {
	v := inst.refc.Load()
	if v&instanceDeleteBit != 0 {
		return -1
	}
	return int32(v & instanceCountMask)
}

// TkMapOpts configures a TkMap; all fields are optional.
type TkMapOpts struct {
	// InitialBuckets sizes the backing Hopscotch table; rounded up to a
	// power of two, at least 64.
	InitialBuckets int
	// Reclaim supplies the deferred reclaimer (spec §6.3); defaults to a
	// fresh EpochReclaimer.
	Reclaim Reclaimer
	// Logger receives debug-level lifecycle events (instance creation,
	// instance teardown, Free). Defaults to a no-op logger.
	Logger *zap.SugaredLogger
}

// TkMap is the concurrent, resizable InstanceMap of spec §4.5: a hopscotch
// table keyed by SerializedSample (via SerdataCmp), plus an iid->Instance
// side index and the process's IidGenerator.
type TkMap struct {
	hops    *Hopscotch
	byIid   sync.Map // uint64 -> *Instance
	iidGen  *IidGenerator
	reclaim Reclaimer
	log     *zap.SugaredLogger

	mu   sync.Mutex
	cond *sync.Cond
}

// NewTkMap constructs an empty TkMap.
func NewTkMap(opts TkMapOpts) *TkMap {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	reclaim := opts.Reclaim
	if reclaim == nil {
		reclaim = NewEpochReclaimer()
	}
	buckets := opts.InitialBuckets
	if buckets == 0 {
		buckets = addRange
	}
	m := &TkMap{
		hops:    NewHopscotch(buckets, reclaim),
		iidGen:  NewIidGenerator(),
		reclaim: reclaim,
		log:     logger,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Free logs the number of live instances and does nothing else: it does not
// unref the remaining instances or their samples and does not clear the
// table. Spec §4.5.1 requires the map be quiescent (no in-flight
// lookups/refs hold a pointer into it) before calling this; the core does
// not itself enforce that.
func (m *TkMap) Free() {
	m.log.Debugw("tkmap freed", "instances", m.hops.Len())
}

// LookupIid returns the IID bound to sample's identity, or (0, false) if
// no instance with that identity exists.
func (m *TkMap) LookupIid(sample *SerializedSample) (uint64, bool) {
	hash, err := sample.Hash()
	if err != nil {
		return 0, false
	}
	e := m.hops.Lookup(hash, func(e *hopEntry) bool {
		eq, err := SerdataCmp(e.sample, sample)
		return err == nil && eq == 0
	})
	if e == nil {
		return 0, false
	}
	return e.inst.Iid, true
}

// FindByID returns the instance bound to iid, or nil.
func (m *TkMap) FindByID(iid uint64) *Instance {
	v, ok := m.byIid.Load(iid)
	if !ok {
		return nil
	}
	return v.(*Instance)
}

// Find resolves sample's identity to an Instance, taking a reference on it.
// If none exists and create is true, a new Instance is allocated with a
// fresh IID and refc=1; if none exists and create is false, Find returns
// (nil, nil). It retries internally if it races a concurrent teardown
// (spec §4.5.4: "find(create=true) will create a new one with a new IID").
func (m *TkMap) Find(sample *SerializedSample, create bool) (*Instance, error) {
	hash, err := sample.Hash()
	if err != nil {
		return nil, err
	}
	for {
		e := m.hops.Lookup(hash, func(e *hopEntry) bool {
			eq, err := SerdataCmp(e.sample, sample)
			return err == nil && eq == 0
		})
		if e != nil {
			if err := m.InstanceRef(e.inst); err == nil {
				return e.inst, nil
			}
			// DELETE observed: wait for the removal to complete, then retry.
			m.waitForRemoval(e.inst)
			continue
		}
		if !create {
			return nil, nil
		}
		inst, inserted := m.insertNew(hash, sample)
		if !inserted {
			continue
		}
		return inst, nil
	}
}

// insertNew allocates a fresh Instance with refc=1 and inserts it. Inserts
// are serialized by m.mu and the identity is looked up again under that
// lock: if a concurrent inserter already won the race for the same
// identity, insertNew inserts nothing and returns false, and Find's loop
// then picks up the existing instance via its own Lookup.
func (m *TkMap) insertNew(hash uint32, sample *SerializedSample) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.hops.Lookup(hash, func(e *hopEntry) bool {
		eq, err := SerdataCmp(e.sample, sample)
		return err == nil && eq == 0
	})
	if existing != nil {
		return nil, false
	}
	inst := &Instance{Iid: m.iidGen.Next(), Sample: sample}
	inst.refc.Store(1)
	m.hops.Insert(hash, &hopEntry{hash: hash, sample: sample, inst: inst})
	m.byIid.Store(inst.Iid, inst)
	m.log.Debugw("tkmap instance created", "iid", inst.Iid)
	return inst, true
}

// GetKey copies iid's key representation into out, spec §4.5.1.
func (m *TkMap) GetKey(iid uint64, out *OctetStream) (bool, error) {
	inst := m.FindByID(iid)
	if inst == nil {
		return false, nil
	}
	in := NewOctetStreamFromBytes(orderForIdentifier(inst.Sample.Header.Identifier), inst.Sample.Body)
	if err := ExtractKey(inst.Sample.Topic, in, out); err != nil {
		return false, err
	}
	return true, nil
}

// InstanceRef takes a reference on inst. It returns ErrInstanceGone,
// without modifying refc, if inst is already marked DELETE — that bit is
// terminal and never clears (spec §4.5.4).
func (m *TkMap) InstanceRef(inst *Instance) error {
	for {
		old := inst.refc.Load()
		if old&instanceDeleteBit != 0 {
			return ErrInstanceGone
		}
		if inst.refc.CompareAndSwap(old, old+1) {
			return nil
		}
	}
}

// InstanceUnref releases a reference. If the count was exactly 1, it
// installs DELETE instead of 0, removes the instance from the map,
// broadcasts to waiters, and hands the instance to deferred reclamation
// (spec §4.5.4).
func (m *TkMap) InstanceUnref(inst *Instance) {
	for {
		old := inst.refc.Load()
		if old == 1 {
			if inst.refc.CompareAndSwap(1, instanceDeleteBit) {
				m.teardown(inst)
				return
			}
			continue
		}
		if inst.refc.CompareAndSwap(old, old-1) {
			return
		}
	}
}

func (m *TkMap) teardown(inst *Instance) {
	hash, err := inst.Sample.Hash()
	if err == nil {
		m.hops.Delete(hash, func(e *hopEntry) bool { return e.inst == inst })
	}
	m.byIid.Delete(inst.Iid)

	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()

	m.log.Debugw("tkmap instance torn down", "iid", inst.Iid)
	if m.reclaim != nil {
		m.reclaim.Defer(func() {}, inst)
	}
}

// waitForRemoval blocks until inst is no longer reachable by IID, i.e.
// until its teardown's removal step has completed.
func (m *TkMap) waitForRemoval(inst *Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if _, ok := m.byIid.Load(inst.Iid); !ok {
			return
		}
		m.cond.Wait()
	}
}

// LookupInstanceRef resolves sample's identity to an Instance and takes a
// reference, without creating one if absent (spec §4.5.1 "null if topic
// gone").
func (m *TkMap) LookupInstanceRef(sample *SerializedSample) (*Instance, error) {
	return m.Find(sample, false)
}
