package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultSubjectLockTTL = 30 * time.Second

// MemorySubjectLocker is a single-process advisory lock table keyed by
// subject. Leases expire so a crashed holder cannot block a subject forever.
type MemorySubjectLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemorySubjectLocker() *MemorySubjectLocker {
	return &MemorySubjectLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemorySubjectLocker) Acquire(_ context.Context, subjectKey string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: subject locker is not configured")
	}
	subjectKey = strings.TrimSpace(subjectKey)
	if subjectKey == "" {
		return nil, fmt.Errorf("core: subject key is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultSubjectLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[subjectKey]; ok && now.Before(until) {
		return nil, fmt.Errorf("core: refresh lock already held for subject %q", subjectKey)
	}
	l.locks[subjectKey] = now.Add(ttl)
	return &memoryLockHandle{locker: l, subjectKey: subjectKey}, nil
}

type memoryLockHandle struct {
	locker     *MemorySubjectLocker
	subjectKey string
	once       sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.subjectKey)
		h.locker.mu.Unlock()
	})
	return nil
}

var _ SubjectLocker = (*MemorySubjectLocker)(nil)
