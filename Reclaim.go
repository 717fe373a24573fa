package ddscdr

import (
	"sync"
	"sync/atomic"
)

//============================================= ddscdr deferred reclamation

// Reclaimer runs callback once every thread that might hold a pointer into
// arg has left the window in which that pointer could be dereferenced
// (spec §6.3: "defer(callback, arg) runs the callback after all threads
// have left the quiescent state in which the argument might be
// referenced"). Hopscotch hands old backing tables to a Reclaimer instead
// of freeing them the instant a resize completes, and TkMap hands torn-down
// Instances to one instead of freeing them the instant DELETE is set.
type Reclaimer interface {
	Defer(callback func(), arg any)
}

// EpochReclaimer is an epoch-based Reclaimer: callers bracket a read-side
// critical section with Enter/Leave, and Defer's callback runs once the
// global epoch has advanced past every epoch active when it was deferred.
// This is the Go-native analog of the teacher's NodePool, which took nodes
// off the hot path into a pool instead of freeing them inline; here the
// same "don't free on the hot path" idea is driven by epochs rather than a
// fixed pool of reusable node slots, since reclamation here must wait on
// concurrent readers rather than just on garbage-collecting structural
// history.
type EpochReclaimer struct {
	epoch  atomic.Uint64
	active atomic.Int64

	// mu guards pending; Defer/reap are called from arbitrary goroutines
	// (TkMap.InstanceUnref's teardown path defers from whichever goroutine
	// loses the final unref race), so the slice cannot be a bare field.
	mu      sync.Mutex
	pending []pendingReclaim
}

type pendingReclaim struct {
	epoch    uint64
	callback func()
}

// NewEpochReclaimer returns a ready-to-use EpochReclaimer.
func NewEpochReclaimer() *EpochReclaimer {
	return &EpochReclaimer{}
}

// Enter marks the calling thread as having entered a quiescent-state
// section (spec §5 "Suspension points"/§6.3 "thread-state"); Leave marks
// its exit. Both are cheap atomic increments, matching the spec's
// lock-free-lookup performance requirement.
func (r *EpochReclaimer) Enter() { r.active.Add(1) }
func (r *EpochReclaimer) Leave() { r.active.Add(-1) }

// Defer schedules callback to run once no thread is active in the epoch
// current at the time of the call. arg is retained only to keep it
// reachable (and therefore alive under Go's GC) until the callback fires;
// the callback itself is responsible for any actual teardown of arg.
func (r *EpochReclaimer) Defer(callback func(), arg any) {
	ep := r.epoch.Load()
	wrapped := func() {
		_ = arg
		callback()
	}
	r.mu.Lock()
	r.pending = append(r.pending, pendingReclaim{epoch: ep, callback: wrapped})
	r.mu.Unlock()
	r.reap()
}

// reap runs and drops every pending callback whose epoch has been fully
// vacated. It is called opportunistically from Defer; a production
// reclaimer would also run it from a background sweep, but the core's
// scope (spec §1 Non-goals) stops at the interface plus a usable default.
func (r *EpochReclaimer) reap() {
	if r.active.Load() != 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active.Load() != 0 {
		return
	}
	r.epoch.Add(1)
	for _, p := range r.pending {
		p.callback()
	}
	r.pending = r.pending[:0]
}
