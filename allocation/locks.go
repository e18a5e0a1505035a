package allocation

import "sync"

// PeriodLocks serializes writers per working period. A reconciliation diff is
// computed against a snapshot; two concurrent writers on one period would
// each act on a stale view.
type PeriodLocks struct {
	mu    sync.Mutex
	locks map[PeriodID]*periodLock
}

type periodLock struct {
	mu   sync.Mutex
	refs int
}

// NewPeriodLocks creates an empty lock table.
func NewPeriodLocks() *PeriodLocks {
	return &PeriodLocks{locks: make(map[PeriodID]*periodLock)}
}

// Lock blocks until the caller holds the lock for id and returns the
// matching unlock function. Entries are dropped once nobody holds or waits
// for them.
func (l *PeriodLocks) Lock(id PeriodID) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.locks[id]
	if !ok {
		pl = &periodLock{}
		l.locks[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of periods currently locked or waited on.
func (l *PeriodLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
