package htable

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Mode selects whether the table may assume single-threaded access
// (Sequential, between BFS layers) or must behave as a lock-free,
// append-only structure with deferred growth (Concurrent, during an
// epoch). Transitions between the two are driven by the coordinator.
type Mode int

const (
	Sequential Mode = iota
	Concurrent
)

// stripesPerWorker is the nlocks = 64*workers constant from the design:
// one mutex per hash stripe, striped finely enough that two workers
// mutating unrelated slots essentially never contend.
const stripesPerWorker = 64

// growThresholdSequential is checked eagerly after every sequential
// insert: count/nbuckets > 2 triggers a resize.
const growThresholdSequential = 2.0

// growFactorSequential grows the sequential table by 5x minus 1, per
// the design (an odd bucket count reduces systematic collisions from
// power-of-two-aligned keys).
const growFactorSequential = 5

// growThresholdConcurrent is the load factor above which grow_prepare
// decides to resize between epochs.
const growThresholdConcurrent = 0.5

// Slot is a stable pointer to a fixed-size payload. Every insert of the
// same key, concurrent or not, returns the same Slot. Callers hold the
// stripe lock returned by StripeLock (or the table-wide exclusivity of
// Sequential mode) across any mutation of Bytes.
type Slot struct {
	Bytes []byte
}

type bucketNode struct {
	hash    uint32
	key     []byte
	slot    Slot
	nextPtr atomic.Pointer[bucketNode]
}

type bucketArray struct {
	buckets []atomic.Pointer[bucketNode]
}

// Table is the lock-striped concurrent hash table described in spec
// component C1. It de-duplicates variable-length byte keys and hands
// back a stable slot plus (on request) a stripe lock for the key.
type Table struct {
	mode    Mode
	nworkers int

	buckets    atomic.Pointer[bucketArray]
	oldBuckets atomic.Pointer[bucketArray]

	count atomic.Int64

	locks  []sync.Mutex
	arenas []*Arena

	// seqMu guards resizing in Sequential mode only; Concurrent mode
	// never takes it (growth there is the GrowPrepare/MakeStable dance).
	seqMu sync.Mutex
}

// New creates a table sized for nworkers callers with an initial bucket
// count of initialBuckets (16 when initialBuckets is below 1).
func New(nworkers, initialBuckets int) *Table {
	if nworkers < 1 {
		nworkers = 1
	}
	if initialBuckets < 1 {
		initialBuckets = 16
	}
	t := &Table{
		nworkers: nworkers,
		locks:    make([]sync.Mutex, stripesPerWorker*nworkers),
		arenas:   make([]*Arena, nworkers),
	}
	for i := range t.arenas {
		t.arenas[i] = NewArena()
	}
	t.buckets.Store(&bucketArray{buckets: make([]atomic.Pointer[bucketNode], initialBuckets)})
	return t
}

// SetMode switches the table between Sequential (single writer, eager
// grow) and Concurrent (lock-free insert, deferred grow) operation. The
// coordinator calls this on the single thread of control that also runs
// barrier synchronisation, between epochs.
func (t *Table) SetMode(m Mode) { t.mode = m }

// Len reports the number of distinct keys currently published.
func (t *Table) Len() int { return int(t.count.Load()) }

// Arena returns the bump allocator owned by the given worker index.
func (t *Table) Arena(worker int) *Arena { return t.arenas[worker] }

// Insert publishes key if it is not already present and returns its
// slot plus whether this call created it. init, if non-nil, is called
// to fill the payload before the node is published -- the payload must
// be fully written before publish since chain traversal never locks.
func (t *Table) Insert(worker int, key []byte, payloadSize int, init func(payload []byte)) (*Slot, bool) {
	h := hashBytes(key)
	for {
		ba := t.buckets.Load()
		idx := int(h) % len(ba.buckets)
		head := &ba.buckets[idx]
		n := head.Load()
		for cur := n; cur != nil; cur = cur.nextPtr.Load() {
			if cur.hash == h && bytes.Equal(cur.key, key) {
				return &cur.slot, false
			}
		}

		node := t.newNode(worker, h, key, payloadSize)
		if init != nil {
			init(node.slot.Bytes)
		}
		node.nextPtr.Store(n)
		if head.CompareAndSwap(n, node) {
			t.count.Add(1)
			if t.mode == Sequential {
				t.maybeGrowSequential()
			}
			return &node.slot, true
		}
		// Lost the race to publish; another worker inserted a node
		// (possibly for this very key). Loop and rescan.
	}
}

func (t *Table) newNode(worker int, h uint32, key []byte, payloadSize int) *bucketNode {
	arena := t.arenas[worker]
	keyCopy := arena.Alloc(len(key))
	copy(keyCopy, key)
	payload := arena.Alloc(payloadSize)
	return &bucketNode{hash: h, key: keyCopy, slot: Slot{Bytes: payload}}
}

// StripeLock returns the mutex protecting mutations to the slot for
// key. The caller must hold it for the duration of any write to the
// slot's payload.
func (t *Table) StripeLock(key []byte) *sync.Mutex {
	h := hashBytes(key)
	return &t.locks[h%uint32(len(t.locks))]
}

// InsertLocked is Insert plus the stripe lock for the key, matching the
// find_lock contract of the design: (slot, is_new, lock).
func (t *Table) InsertLocked(worker int, key []byte, payloadSize int, init func(payload []byte)) (*Slot, bool, *sync.Mutex) {
	slot, isNew := t.Insert(worker, key, payloadSize, init)
	return slot, isNew, t.StripeLock(key)
}

// Find looks up key without inserting it.
func (t *Table) Find(key []byte) (*Slot, bool) {
	h := hashBytes(key)
	ba := t.buckets.Load()
	idx := int(h) % len(ba.buckets)
	for cur := ba.buckets[idx].Load(); cur != nil; cur = cur.nextPtr.Load() {
		if cur.hash == h && bytes.Equal(cur.key, key) {
			return &cur.slot, true
		}
	}
	return nil, false
}

func (t *Table) maybeGrowSequential() {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()
	ba := t.buckets.Load()
	if float64(t.count.Load())/float64(len(ba.buckets)) <= growThresholdSequential {
		return
	}
	newSize := len(ba.buckets)*growFactorSequential - 1
	t.resizeInto(ba, newSize)
}

// GrowPrepare is called sequentially between epochs (the coordinator's
// single thread of control). If the load factor exceeds the concurrent
// threshold, it swaps in a fresh, empty bucket array and stashes the
// old one so that MakeStable can rehash it stripe by stripe. No insert
// may race with this call.
func (t *Table) GrowPrepare() bool {
	ba := t.buckets.Load()
	if float64(t.count.Load())/float64(len(ba.buckets)) <= growThresholdConcurrent {
		return false
	}
	newSize := len(ba.buckets)*growFactorSequential - 1
	if newSize < 1 {
		newSize = 1
	}
	newBA := &bucketArray{buckets: make([]atomic.Pointer[bucketNode], newSize)}
	t.oldBuckets.Store(ba)
	t.buckets.Store(newBA)
	return true
}

// resizeInto grows the sequential table in place (single writer, so
// plain pointer chases are safe).
func (t *Table) resizeInto(old *bucketArray, newSize int) {
	if newSize < 1 {
		newSize = 1
	}
	newBA := &bucketArray{buckets: make([]atomic.Pointer[bucketNode], newSize)}
	for i := range old.buckets {
		for cur := old.buckets[i].Load(); cur != nil; {
			nxt := cur.nextPtr.Load()
			idx := int(cur.hash) % newSize
			cur.nextPtr.Store(newBA.buckets[idx].Load())
			newBA.buckets[idx].Store(cur)
			cur = nxt
		}
	}
	t.buckets.Store(newBA)
}

// MakeStable is called by each worker once GrowPrepare has swapped in a
// new bucket array. Worker w rehashes exactly the old buckets where
// i mod nworkers == w into the new array, so workers never contend
// over the same old bucket. It is only ever invoked from the post-layer
// serial+parallel handoff, where no inserts are in flight.
func (t *Table) MakeStable(worker int) {
	old := t.oldBuckets.Load()
	if old == nil {
		return
	}
	newBA := t.buckets.Load()
	for i := worker; i < len(old.buckets); i += t.nworkers {
		for cur := old.buckets[i].Load(); cur != nil; {
			nxt := cur.nextPtr.Load()
			idx := int(cur.hash) % len(newBA.buckets)
			for {
				head := newBA.buckets[idx].Load()
				cur.nextPtr.Store(head)
				if newBA.buckets[idx].CompareAndSwap(head, cur) {
					break
				}
			}
			cur = nxt
		}
	}
}

// FinishGrow drops the reference to the old bucket array once every
// worker has called MakeStable. After this call no key can appear in
// both arrays, since there is only one array left.
func (t *Table) FinishGrow() {
	t.oldBuckets.Store(nil)
}
