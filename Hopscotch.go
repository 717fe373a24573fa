package ddscdr

import (
	"sync"
	"sync/atomic"
)

//============================================= ddscdr Hopscotch

const (
	hopRange      = 32
	addRange      = 64
	lockStripes   = 32
	resizeStripes = 8
	maxLookupTries = 4

	lockedBit = uint32(1) << 31
)

// hopEntry is one occupied slot: the map-slot hash that placed it, and the
// opaque payload (a SerializedSample/Instance pair in tkmap's case, spec
// §4.5).
type hopEntry struct {
	hash   uint32
	sample *SerializedSample
	inst   *Instance
}

// hopBucket is the {hopinfo, timestamp, lock, data-ptr} unit spec §4.5.3
// describes. hopInfo's bit i means "the entry whose home bucket is this one
// currently lives i slots forward." lockWord's high bit is the lock; the
// low 31 bits count waiters blocked on this bucket's lock stripe.
type hopBucket struct {
	hopInfo   uint32
	timestamp uint32
	lockWord  uint32
	entry     atomic.Pointer[hopEntry]
}

// hopTable is one generation of the backing array. Resizing replaces the
// whole table by pointer swap (spec §4.5.3 "acquire all resize locks...
// double the table, and install via pointer swap"); the old table is handed
// to the deferred reclaimer rather than freed immediately.
type hopTable struct {
	buckets []hopBucket
	mask    uint32
}

func newHopTable(n int) *hopTable {
	return &hopTable{buckets: make([]hopBucket, n), mask: uint32(n - 1)}
}

// lockStripe backs one of the 32 bucket-lock-waiter condition variables
// (spec §4.5.3: "waiters block on a per-bucket-stripe (32 stripes) CV;
// unlock broadcasts because the CV is shared").
type lockStripe struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func newLockStripe() *lockStripe {
	s := &lockStripe{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Hopscotch is the concurrent, resizable, open-addressed table underlying
// InstanceMap, spec §4.5.3.
type Hopscotch struct {
	tbl         atomic.Pointer[hopTable]
	stripes     [lockStripes]*lockStripe
	resizeLocks [resizeStripes]sync.RWMutex
	reclaim     Reclaimer
	count       atomic.Int64
}

// NewHopscotch allocates a table with at least initialBuckets slots
// (rounded up to a power of two, and to at least addRange).
func NewHopscotch(initialBuckets int, reclaim Reclaimer) *Hopscotch {
	if initialBuckets < addRange {
		initialBuckets = addRange
	}
	h := &Hopscotch{reclaim: reclaim}
	for i := range h.stripes {
		h.stripes[i] = newLockStripe()
	}
	h.tbl.Store(newHopTable(nextPowerOfTwo(initialBuckets)))
	return h
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (h *Hopscotch) stripeFor(bucket uint32) *lockStripe {
	return h.stripes[bucket%lockStripes]
}

// lockBucket spins on the CAS, then parks on the bucket's lock stripe's CV
// if another holder has it. The stripe is shared by many buckets, so a
// waiter rechecks its own bucket's lock word after every wakeup.
func lockBucket(word *uint32, stripe *lockStripe) {
	for {
		old := atomic.LoadUint32(word)
		if old&lockedBit == 0 {
			if atomic.CompareAndSwapUint32(word, old, old|lockedBit) {
				return
			}
			continue
		}
		stripe.mu.Lock()
		atomic.AddUint32(word, 1)
		for atomic.LoadUint32(word)&lockedBit != 0 {
			stripe.cond.Wait()
		}
		atomic.AddUint32(word, ^uint32(0))
		stripe.mu.Unlock()
	}
}

func unlockBucket(word *uint32, stripe *lockStripe) {
	for {
		old := atomic.LoadUint32(word)
		if atomic.CompareAndSwapUint32(word, old, old&^lockedBit) {
			break
		}
	}
	stripe.mu.Lock()
	stripe.cond.Broadcast()
	stripe.mu.Unlock()
}

// Lookup is lock-free, spec §4.5.3: read timestamp, then the hop bitmap,
// scan its up-to-32 candidate slots, and restart if the timestamp moved
// during the scan; after maxLookupTries restarts, fall back to one
// pessimistic scan of the full hop range.
func (h *Hopscotch) Lookup(hash uint32, match func(*hopEntry) bool) *hopEntry {
	t := h.tbl.Load()
	start := hash & t.mask

	for try := 0; try < maxLookupTries; try++ {
		ts1 := atomic.LoadUint32(&t.buckets[start].timestamp)
		hopInfo := atomic.LoadUint32(&t.buckets[start].hopInfo)
		if e, ok := scanHopBitmap(t, start, hopInfo, match); ok {
			return e
		}
		ts2 := atomic.LoadUint32(&t.buckets[start].timestamp)
		if ts1 == ts2 {
			return nil
		}
	}
	return pessimisticScan(t, start, match)
}

func scanHopBitmap(t *hopTable, start uint32, hopInfo uint32, match func(*hopEntry) bool) (*hopEntry, bool) {
	for i := uint32(0); i < hopRange; i++ {
		if hopInfo&(1<<i) == 0 {
			continue
		}
		idx := (start + i) & t.mask
		if e := t.buckets[idx].entry.Load(); e != nil && match(e) {
			return e, true
		}
	}
	return nil, false
}

func pessimisticScan(t *hopTable, start uint32, match func(*hopEntry) bool) *hopEntry {
	for i := uint32(0); i < hopRange; i++ {
		idx := (start + i) & t.mask
		if e := t.buckets[idx].entry.Load(); e != nil && match(e) {
			return e
		}
	}
	return nil
}

// Insert places e at its hashed home bucket, resizing and retrying until
// there is room. It does not check for duplicates: the caller is expected
// to Lookup first under the map's higher-level semantics.
func (h *Hopscotch) Insert(hash uint32, e *hopEntry) {
	for {
		t := h.tbl.Load()
		rl := &h.resizeLocks[hash%resizeStripes]
		rl.RLock()
		if h.tbl.Load() != t {
			rl.RUnlock()
			continue
		}
		ok := h.insertInto(t, hash, e)
		rl.RUnlock()
		if ok {
			h.count.Add(1)
			return
		}
		h.resize(t)
	}
}

// insertInto implements the probe-then-relocate algorithm of spec §4.5.3.
// For simplicity this holds the start bucket's lock across the whole
// displacement chain rather than acquiring each displaced bucket's lock
// individually in increasing order; both orders are deadlock-free here
// since the chain only ever walks forward from start, so this is a safe,
// lower-concurrency simplification of the spec's finer-grained locking.
//
// Ring distances (start-to-free, start-to-j, ...) are tracked as explicit
// counters alongside the bucket indices rather than recomputed from raw
// index subtraction: indices wrap mod the table size via "& t.mask", so a
// free slot that wraps past the end of the ring has free < start in raw
// terms even though it sits only a few slots away — plain "free - start"
// on the raw uint32 indices would silently underflow to a huge value
// instead. findFreeSlot therefore returns the scan distance it found the
// slot at, and that distance is carried forward (adjusted, not
// re-subtracted) through every relocation step.
func (h *Hopscotch) insertInto(t *hopTable, hash uint32, e *hopEntry) bool {
	start := hash & t.mask
	startBucket := &t.buckets[start]
	lockBucket(&startBucket.lockWord, h.stripeFor(start))
	defer unlockBucket(&startBucket.lockWord, h.stripeFor(start))

	free, freeDist, ok := findFreeSlot(t, start)
	if !ok {
		return false
	}

	for freeDist >= hopRange {
		moved := false
		for d := uint32(hopRange - 1); d >= 1; d-- {
			j := (free - d) & t.mask
			jDist := freeDist - d
			hopInfoJ := atomic.LoadUint32(&t.buckets[j].hopInfo)
			for off := uint32(0); off < d; off++ {
				if hopInfoJ&(1<<off) == 0 {
					continue
				}
				srcIdx := (j + off) & t.mask
				src := &t.buckets[srcIdx]
				moving := src.entry.Load()
				if moving == nil {
					continue
				}
				t.buckets[free].entry.Store(moving)
				src.entry.Store(nil)
				atomic.StoreUint32(&t.buckets[j].hopInfo, hopInfoJ&^(1<<off)|(1<<d))
				atomic.AddUint32(&src.timestamp, 1)
				free = srcIdx
				freeDist = jDist + off
				moved = true
				break
			}
			if moved {
				break
			}
		}
		if !moved {
			return false
		}
	}

	t.buckets[free].entry.Store(e)
	atomic.AddUint32(&startBucket.hopInfo, 1<<freeDist)
	return true
}

// findFreeSlot scans forward from start for an empty slot within addRange,
// returning both its index and its distance (0..addRange-1) from start.
func findFreeSlot(t *hopTable, start uint32) (idx uint32, dist uint32, ok bool) {
	for i := uint32(0); i < addRange; i++ {
		idx := (start + i) & t.mask
		if t.buckets[idx].entry.Load() == nil {
			return idx, i, true
		}
	}
	return 0, 0, false
}

// Delete removes the entry matching hash+match, clearing its hop bit.
func (h *Hopscotch) Delete(hash uint32, match func(*hopEntry) bool) bool {
	t := h.tbl.Load()
	rl := &h.resizeLocks[hash%resizeStripes]
	rl.RLock()
	defer rl.RUnlock()

	start := hash & t.mask
	startBucket := &t.buckets[start]
	lockBucket(&startBucket.lockWord, h.stripeFor(start))
	defer unlockBucket(&startBucket.lockWord, h.stripeFor(start))

	hopInfo := atomic.LoadUint32(&startBucket.hopInfo)
	for i := uint32(0); i < hopRange; i++ {
		if hopInfo&(1<<i) == 0 {
			continue
		}
		idx := (start + i) & t.mask
		e := t.buckets[idx].entry.Load()
		if e != nil && match(e) {
			t.buckets[idx].entry.Store(nil)
			atomic.StoreUint32(&startBucket.hopInfo, hopInfo&^(1<<i))
			atomic.AddUint32(&startBucket.timestamp, 1)
			h.count.Add(-1)
			return true
		}
	}
	return false
}

// resize doubles the table under all 8 resize-lock stripes held for write,
// rehashes every live entry into the new table, installs it by pointer
// swap, and defers reclamation of the old one (spec §4.5.3).
func (h *Hopscotch) resize(old *hopTable) {
	for i := range h.resizeLocks {
		h.resizeLocks[i].Lock()
	}
	defer func() {
		for i := range h.resizeLocks {
			h.resizeLocks[i].Unlock()
		}
	}()

	if h.tbl.Load() != old {
		return
	}

	next := newHopTable(len(old.buckets) * 2)
	for i := range old.buckets {
		e := old.buckets[i].entry.Load()
		if e == nil {
			continue
		}
		rehashInsert(next, e)
	}
	h.tbl.Store(next)
	if h.reclaim != nil {
		h.reclaim.Defer(func() {}, old)
	}
}

// rehashInsert is Insert's single-threaded core, used only while resize
// holds every resize lock for write (no concurrent reader/writer can be
// mid-operation against old, and next is not yet published).
func rehashInsert(t *hopTable, e *hopEntry) {
	start := e.hash & t.mask
	free, freeDist, ok := findFreeSlot(t, start)
	if !ok {
		// A freshly doubled table should never fail to find room for the
		// entries of a table half its size; if it does, the caller's next
		// resize cycle will double again.
		return
	}
	for freeDist >= hopRange {
		moved := false
		for d := uint32(hopRange - 1); d >= 1; d-- {
			j := (free - d) & t.mask
			jDist := freeDist - d
			hopInfoJ := t.buckets[j].hopInfo
			for off := uint32(0); off < d; off++ {
				if hopInfoJ&(1<<off) == 0 {
					continue
				}
				srcIdx := (j + off) & t.mask
				moving := t.buckets[srcIdx].entry.Load()
				if moving == nil {
					continue
				}
				t.buckets[free].entry.Store(moving)
				t.buckets[srcIdx].entry.Store(nil)
				t.buckets[j].hopInfo = hopInfoJ&^(1<<off) | (1 << d)
				free = srcIdx
				freeDist = jDist + off
				moved = true
				break
			}
			if moved {
				break
			}
		}
		if !moved {
			return
		}
	}
	t.buckets[free].entry.Store(e)
	t.buckets[start].hopInfo |= 1 << freeDist
}

// Len reports the number of live entries.
func (h *Hopscotch) Len() int64 { return h.count.Load() }
