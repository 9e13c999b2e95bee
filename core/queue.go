package core

import (
	"container/heap"
	"sync"
	"time"
)

const (
	defaultQueueCap = 16
)

// TaskQueue defines the interface for queue implementations used by TaskScheduler.
type TaskQueue interface {
	Push(t Task, traits TaskTraits) TaskItem
	Pop() (TaskItem, bool)
	PopUpTo(max int) []TaskItem
	PeekTraits() (TaskTraits, bool)
	Len() int
	IsEmpty() bool
	Clear() int
	Drain() []TaskItem
}

// =============================================================================
// PriorityTaskQueue: Min-Heap based queue with Stability (FIFO for same priority)
// =============================================================================

type priorityItem struct {
	TaskItem
	index int // For heap
}

// priorityHeap implements heap.Interface
type priorityHeap []*priorityItem

func (h priorityHeap) Len() int { return len(h) }

// Less orders by smallest priority value first, then smallest sequence (FIFO)
func (h priorityHeap) Less(i, j int) bool {
	if h[i].Traits.Priority != h[j].Traits.Priority {
		return h[i].Traits.Priority < h[j].Traits.Priority
	}
	return h[i].Sequence < h[j].Sequence
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x any) {
	n := len(*h)
	item := x.(*priorityItem)
	item.index = n
	*h = append(*h, item)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// PriorityTaskQueue is an unbounded, mutex-protected min-heap of tasks.
// The sequence counter is assigned under the same lock as the insert and is
// never reset, so equal priorities always dequeue in submission order.
type PriorityTaskQueue struct {
	mu           sync.Mutex
	pq           priorityHeap
	nextSequence uint64
}

func NewPriorityTaskQueue() *PriorityTaskQueue {
	return &PriorityTaskQueue{
		pq: make(priorityHeap, 0, defaultQueueCap),
	}
}

func (q *PriorityTaskQueue) Push(t Task, traits TaskTraits) TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &priorityItem{
		TaskItem: TaskItem{
			ID:         GenerateTaskID(),
			Task:       t,
			Traits:     traits,
			Sequence:   q.nextSequence,
			EnqueuedAt: time.Now(),
		},
	}
	q.nextSequence++

	heap.Push(&q.pq, item)
	return item.TaskItem
}

func (q *PriorityTaskQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pq) == 0 {
		return TaskItem{}, false
	}

	item := heap.Pop(&q.pq).(*priorityItem)
	return item.TaskItem, true
}

func (q *PriorityTaskQueue) PopUpTo(max int) []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := len(q.pq)
	if count == 0 || max <= 0 {
		return nil
	}
	if count > max {
		count = max
	}

	batch := make([]TaskItem, count)
	for i := 0; i < count; i++ {
		item := heap.Pop(&q.pq).(*priorityItem)
		batch[i] = item.TaskItem
	}
	return batch
}

func (q *PriorityTaskQueue) PeekTraits() (TaskTraits, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pq) == 0 {
		return TaskTraits{}, false
	}
	return q.pq[0].Traits, true
}

func (q *PriorityTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pq)
}

func (q *PriorityTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all queued tasks and returns how many were dropped.
func (q *PriorityTaskQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pq)
	// Create a new heap to release all task references
	q.pq = make(priorityHeap, 0, defaultQueueCap)
	return n
}

// Drain removes all queued tasks and returns them in dequeue order.
func (q *PriorityTaskQueue) Drain() []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pq) == 0 {
		return nil
	}
	out := make([]TaskItem, 0, len(q.pq))
	for len(q.pq) > 0 {
		out = append(out, heap.Pop(&q.pq).(*priorityItem).TaskItem)
	}
	q.pq = make(priorityHeap, 0, defaultQueueCap)
	return out
}
