package frontier

import "time"

// Entry is a single frontier row awaiting dispatch: a page URL, the host it
// targets, a priority (lower dispatched first), and the time it was pushed
// (tie-breaker).
type Entry struct {
	PageURL  string
	Host     string
	Priority int
	AddedAt  time.Time
}

// entryHeap is a container/heap implementation ordered by (Priority,
// AddedAt). It backs the Scheduler's frontier; callers never touch it
// directly.
type entryHeap []Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].AddedAt.Before(h[j].AddedAt)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(Entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
