package scheduler

import (
	"container/heap"
	"time"
)

// entry is one scheduled unit of work: a flow due to run on a device.
type entry struct {
	deviceID string
	flowID   string
	nextDue  time.Time

	// interval is the flow's update interval; reschedules add it to the
	// completion time.
	interval time.Duration

	index int // heap bookkeeping
}

func (e *entry) key() string {
	return e.deviceID + "/" + e.flowID
}

// workQueue is a min-heap ordered by nextDue.
type workQueue []*entry

func (q workQueue) Len() int { return len(q) }

func (q workQueue) Less(i, j int) bool {
	return q[i].nextDue.Before(q[j].nextDue)
}

func (q workQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *workQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *workQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// peek returns the earliest entry without removing it.
func (q workQueue) peek() *entry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// fix re-sorts after an entry's nextDue changed in place.
func (q *workQueue) fix(e *entry) {
	heap.Fix(q, e.index)
}
