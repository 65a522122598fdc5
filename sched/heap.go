package sched

import "time"

// waiter is one entry in the priority queue: a task admitted to Submit
// but not yet granted a concurrency slot.
type waiter struct {
	id          uint64
	priority    int
	submittedAt time.Time
	effective   int
	index       int // maintained by container/heap for O(log n) Remove
	granted     bool
	notify      chan struct{}
}

// waiterHeap orders by descending effective priority, tiebroken by
// ascending id (oldest submission wins among equal priorities).
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].effective != h[j].effective {
		return h[i].effective > h[j].effective
	}
	return h[i].id < h[j].id
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// recomputeEffective applies the aging boost to every waiter still
// queued, relative to now: effectivePriority = min(100, priority +
// floor(waitSeconds/5)*boostPerInterval).
func (h waiterHeap) recomputeEffective(now time.Time, boostPerInterval int) {
	for _, w := range h {
		waitSeconds := now.Sub(w.submittedAt).Seconds()
		boost := int(waitSeconds/5) * boostPerInterval
		eff := w.priority + boost
		if eff > 100 {
			eff = 100
		}
		w.effective = eff
	}
}
