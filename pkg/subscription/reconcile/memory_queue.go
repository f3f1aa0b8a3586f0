package reconcile

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process reconcile.Queue for fixture mode and tests.
type MemoryQueue struct {
	mu        sync.Mutex
	ready     []Task
	scheduled []scheduledTask
	nowFunc   func() time.Time
}

type scheduledTask struct {
	task Task
	due  time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, task Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if delay <= 0 {
		q.ready = append(q.ready, task)
		return nil
	}
	q.scheduled = append(q.scheduled, scheduledTask{task: task, due: q.nowFunc().Add(delay)})
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	deadline := q.nowFunc().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			task := q.ready[0]
			q.ready = q.ready[1:]
			q.mu.Unlock()
			return &task, nil
		}
		q.mu.Unlock()

		if ctx.Err() != nil || !q.nowFunc().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) PromoteDue(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFunc()
	var remaining []scheduledTask
	for _, st := range q.scheduled {
		if !now.Before(st.due) {
			q.ready = append(q.ready, st.task)
			continue
		}
		remaining = append(remaining, st)
	}
	q.scheduled = remaining
	return nil
}

// SetNowFunc overrides the clock. Test hook.
func (q *MemoryQueue) SetNowFunc(f func() time.Time) {
	q.nowFunc = f
}
