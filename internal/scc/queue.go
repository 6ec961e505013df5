package scc

import "sync"

// rangeTask is a half-open [lo, hi) window into the SCC engine's node
// permutation, matching spec.md §3's "SCC record: half-open range over
// the node array".
type rangeTask struct{ lo, hi int }

// taskQueue is the work queue workers in phase 2 pop ranges from.
// spec.md §4.4 describes a split-binary-semaphore pair (todo_lock +
// todo_wait) so idle workers sleep until a peer wakes exactly one of
// them; a single sync.Cond guarding the same mutex that protects the
// task slice is the "cleaner expression of the same idiom" spec.md
// §9's design notes explicitly invite in place of the two-mutex
// scheme.
type taskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []rangeTask
	active int // ranges queued or currently being processed
	closed bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues a non-empty range and marks it active. Ranges are
// popped LIFO, giving a worker that just produced a child range a
// chance to claim it immediately (the "tail-call locality" spec.md
// §4.4 calls out), though -- unlike the original design -- any idle
// worker may claim it first.
func (q *taskQueue) push(lo, hi int) {
	if lo >= hi {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, rangeTask{lo, hi})
	q.active++
	q.cond.Signal()
	q.mu.Unlock()
}

// pop blocks until a range is available or the queue is drained (every
// pushed range has been popped and finished), in which case ok is
// false and the worker should exit.
func (q *taskQueue) pop() (rangeTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.tasks) == 0 {
		return rangeTask{}, false
	}
	n := len(q.tasks) - 1
	t := q.tasks[n]
	q.tasks = q.tasks[:n]
	return t, true
}

// finish marks one previously popped range as fully processed. Any
// child ranges it produced must already have been pushed (so active
// never transiently drops to zero while children are still pending).
// Once active reaches zero, every worker sleeping in pop is woken so
// they can observe the empty, closed queue and return.
func (q *taskQueue) finish() {
	q.mu.Lock()
	q.active--
	if q.active == 0 {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
}
