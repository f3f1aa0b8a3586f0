package apikeyinfra

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridworks/gridcore/pkg/iam/apikey"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// usageWindow is an immutable snapshot of one key's counter. Increments
// replace the whole snapshot via compare-and-swap, so the limit check and
// the bump are one atomic step.
type usageWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryUsageStore is an in-process apikey.UsageStore. Per-key state lives
// in an atomic.Pointer updated by CAS loops; concurrent increments serialize
// without a lock and never overshoot the limit.
type MemoryUsageStore struct {
	mu      sync.Mutex
	windows map[kernel.KeyID]*atomic.Pointer[usageWindow]
	nowFunc func() time.Time
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{
		windows: make(map[kernel.KeyID]*atomic.Pointer[usageWindow]),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryUsageStore) slot(keyID kernel.KeyID, window time.Duration) *atomic.Pointer[usageWindow] {
	s.mu.Lock()
	defer s.mu.Unlock()

	ptr, ok := s.windows[keyID]
	if !ok {
		ptr = &atomic.Pointer[usageWindow]{}
		ptr.Store(&usageWindow{count: 0, resetAt: s.nowFunc().Add(window)})
		s.windows[keyID] = ptr
	}
	return ptr
}

func (s *MemoryUsageStore) Increment(_ context.Context, keyID kernel.KeyID, n int64, limit int64, window time.Duration) (*apikey.Usage, error) {
	ptr := s.slot(keyID, window)

	for {
		current := ptr.Load()
		now := s.nowFunc()

		next := *current
		if !now.Before(current.resetAt) {
			next = usageWindow{count: 0, resetAt: now.Add(window)}
		}

		if next.count+n > limit {
			return nil, apikey.ErrQuotaExceeded(keyID).
				WithDetail("count", next.count).
				WithDetail("limit", limit)
		}
		next.count += n

		if ptr.CompareAndSwap(current, &next) {
			return &apikey.Usage{
				Count:         next.count,
				Limit:         limit,
				WindowResetAt: next.resetAt,
			}, nil
		}
	}
}

func (s *MemoryUsageStore) Get(_ context.Context, keyID kernel.KeyID, limit int64, window time.Duration) (*apikey.Usage, error) {
	ptr := s.slot(keyID, window)
	current := ptr.Load()

	count := current.count
	resetAt := current.resetAt
	if !s.nowFunc().Before(resetAt) {
		count = 0
		resetAt = s.nowFunc().Add(window)
	}

	return &apikey.Usage{
		Count:         count,
		Limit:         limit,
		WindowResetAt: resetAt,
	}, nil
}

// SetNowFunc overrides the clock. Test hook.
func (s *MemoryUsageStore) SetNowFunc(f func() time.Time) {
	s.nowFunc = f
}
