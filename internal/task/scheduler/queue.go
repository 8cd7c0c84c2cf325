package scheduler

import "container/heap"

// entry is a pending task of any result type.
type entry interface {
	info() TaskInfo
	cancelled() bool
	abort() bool
	// cancel sets the chain token as well as the handle.
	cancel() bool
	run(env *execEnv) error
	next(currentTick uint64) (entry, error)
}

type queued struct {
	due uint64
	seq uint64
	e   entry
}

// taskQueue is a min-heap on (due, seq).
type taskQueue []queued

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(queued)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = queued{}
	*q = old[:n-1]
	return it
}

func (q *taskQueue) push(due, seq uint64, e entry) {
	heap.Push(q, queued{due: due, seq: seq, e: e})
}

// popDue removes every entry due at or before tick, in heap order.
func (q *taskQueue) popDue(tick uint64) []entry {
	var out []entry
	for q.Len() > 0 && (*q)[0].due <= tick {
		out = append(out, heap.Pop(q).(queued).e)
	}
	return out
}

func (q taskQueue) peek() (queued, bool) {
	if len(q) == 0 {
		return queued{}, false
	}
	return q[0], true
}
