package task

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/noteldar/conductor/runtime/telemetry"
)

// EnqueueOutcome is the result of an Enqueue call.
type EnqueueOutcome int

const (
	Admitted EnqueueOutcome = iota
	Dropped
)

// Stats summarizes queue activity, mirroring the Python reference
// implementation's get_queue_stats.
type Stats struct {
	TotalEnqueued       int64
	TotalDequeued       int64
	TotalDropped        int64
	AvgWaitTimeSeconds  float64
	CurrentSize         int
	MaxSize             int
	PriorityCounts      map[Priority]int
	OldestPendingWait   time.Duration
}

// item is one entry in the binary heap. index is maintained by
// container/heap so Queue.Reprioritize and Queue.Remove can use heap.Fix
// and heap.Remove in O(log n) instead of rebuilding the whole heap.
type item struct {
	task      *Task
	priority  Priority
	sequence  uint64
	enqueued  time.Time
	index     int
}

type priorityHeap []*item

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].sequence < h[j].sequence
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger attaches a Logger; defaults to a no-op.
func WithLogger(l telemetry.Logger) Option { return func(q *Queue) { q.logger = l } }

// WithMetrics attaches a Metrics sink; defaults to a no-op.
func WithMetrics(m telemetry.Metrics) Option { return func(q *Queue) { q.metrics = m } }

// Queue is a bounded, priority-ordered holding area for pending tasks. All
// mutating operations are serialized by a single mutex guarding both the
// heap and the id index, matching the specification's shared-resource
// policy.
type Queue struct {
	mu       sync.Mutex
	heap     priorityHeap
	index    map[string]*item
	maxSize  int
	sequence uint64

	totalEnqueued int64
	totalDequeued int64
	totalDropped  int64
	avgWait       float64

	logger  telemetry.Logger
	metrics telemetry.Metrics
}

// New builds an empty Queue with the given capacity.
func New(maxSize int, opts ...Option) *Queue {
	q := &Queue{
		heap:    priorityHeap{},
		index:   map[string]*item{},
		maxSize: maxSize,
		logger:  telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
	}
	heap.Init(&q.heap)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue admits t into the queue, using priorityOverride in place of
// t.Priority when non-nil. Returns Dropped rather than an error when the
// queue is at capacity — the specification treats this as a routine
// back-pressure signal, not a failure.
func (q *Queue) Enqueue(t *Task, priorityOverride *Priority) EnqueueOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) >= q.maxSize {
		q.totalDropped++
		q.metrics.IncCounter("task_queue.dropped", 1)
		q.logger.Warn(context.Background(), "queue full, dropping task", "task_id", t.ID)
		return Dropped
	}

	p := t.Priority
	if priorityOverride != nil {
		p = *priorityOverride
	}

	q.sequence++
	it := &item{task: t, priority: p, sequence: q.sequence, enqueued: time.Now()}
	heap.Push(&q.heap, it)
	q.index[t.ID] = it

	q.totalEnqueued++
	q.metrics.IncCounter("task_queue.enqueued", 1)
	return Admitted
}

// Dequeue removes and returns the highest-priority task, or nil if the
// queue is empty.
func (q *Queue) Dequeue() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}
	it := heap.Pop(&q.heap).(*item)
	delete(q.index, it.task.ID)

	wait := time.Since(it.enqueued).Seconds()
	q.updateAvgWait(wait)
	q.totalDequeued++
	q.metrics.RecordTimer("task_queue.wait_seconds", wait)
	return it.task
}

// Peek returns the highest-priority task without removing it.
func (q *Queue) Peek() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0].task
}

// Remove deletes task_id from the queue if present, reporting whether it
// was found.
func (q *Queue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.index[taskID]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, it.index)
	delete(q.index, taskID)
	return true
}

// Reprioritize changes task_id's priority and restores heap order via
// heap.Fix, an O(log n) decrease-key-equivalent rather than a full rebuild.
func (q *Queue) Reprioritize(taskID string, newPriority Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.index[taskID]
	if !ok {
		return false
	}
	it.priority = newPriority
	it.task.Priority = newPriority
	heap.Fix(&q.heap, it.index)
	return true
}

// ByPriority enumerates tasks currently pending at priority p.
func (q *Queue) ByPriority(p Priority) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Task
	for _, it := range q.heap {
		if it.priority == p {
			out = append(out, it.task)
		}
	}
	return out
}

// Size returns the current queue length.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// IsEmpty reports whether the queue holds no tasks.
func (q *Queue) IsEmpty() bool { return q.Size() == 0 }

// IsFull reports whether the queue is at capacity.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap) >= q.maxSize
}

// Clear removes every pending task.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heap = priorityHeap{}
	q.index = map[string]*item{}
}

// Stats reports queue activity counters and the current priority
// distribution.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	dist := map[Priority]int{}
	var oldest time.Duration
	now := time.Now()
	for _, it := range q.heap {
		dist[it.priority]++
		if age := now.Sub(it.enqueued); age > oldest {
			oldest = age
		}
	}
	return Stats{
		TotalEnqueued:      q.totalEnqueued,
		TotalDequeued:      q.totalDequeued,
		TotalDropped:       q.totalDropped,
		AvgWaitTimeSeconds: q.avgWait,
		CurrentSize:        len(q.heap),
		MaxSize:            q.maxSize,
		PriorityCounts:     dist,
		OldestPendingWait:  oldest,
	}
}

func (q *Queue) updateAvgWait(sample float64) {
	if q.totalDequeued == 0 {
		q.avgWait = sample
		return
	}
	q.avgWait = (q.avgWait*float64(q.totalDequeued) + sample) / float64(q.totalDequeued+1)
}
