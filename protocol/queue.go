package protocol

import (
	"container/heap"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

// queueEntry is one pending send request: (priority, arrival_dtm, cmd, qos, result channel).
type queueEntry struct {
	priority Priority
	arrival  time.Time
	cmd      Command
	qos      QosParams
	result   chan sendResult
	index    int // heap bookkeeping
}

type sendResult struct {
	pkt frame.Packet
	err error
}

// priorityQueue orders entries by (priority, arrival_dtm): lower Priority
// values and earlier arrivals sort first.
type priorityQueue []*queueEntry

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].arrival.Before(pq[j].arrival)
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	e := x.(*queueEntry)
	e.index = len(*pq)
	*pq = append(*pq, e)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return e
}

// boundedQueue is a priority queue bounded to a fixed capacity; Push beyond
// capacity fails immediately rather than growing unbounded, so a burst of
// sends cannot accumulate unbounded memory or unbounded send latency.
type boundedQueue struct {
	pq       priorityQueue
	capacity int
}

func newBoundedQueue(capacity int) *boundedQueue {
	q := &boundedQueue{capacity: capacity}
	heap.Init(&q.pq)
	return q
}

// TryPush adds e if there is room, returning false on overflow.
func (q *boundedQueue) TryPush(e *queueEntry) bool {
	if len(q.pq) >= q.capacity {
		return false
	}
	heap.Push(&q.pq, e)
	return true
}

// Pop removes and returns the highest-priority, oldest entry, or nil if empty.
func (q *boundedQueue) Pop() *queueEntry {
	if len(q.pq) == 0 {
		return nil
	}
	return heap.Pop(&q.pq).(*queueEntry)
}

func (q *boundedQueue) Len() int { return len(q.pq) }
