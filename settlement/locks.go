package settlement

import "sync"

// entryLocks serializes operations on one ledger entry while letting
// different entries proceed in parallel. Idle locks are released.
type entryLocks struct {
	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until the caller holds id and returns the matching unlock.
func (l *entryLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*entryLock)
	}
	el, ok := l.locks[id]
	if !ok {
		el = &entryLock{}
		l.locks[id] = el
	}
	el.refs++
	l.mu.Unlock()

	el.mu.Lock()
	return func() {
		el.mu.Unlock()
		l.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// held returns the number of entries with a holder or waiter.
func (l *entryLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
