package service

import "sync"

// classLocker serializes reservation mutations per class. Callers block on
// the class lock instead of failing fast, so when two members race for the
// last seat one enrolls and the other lands on the waitlist; neither sees a
// spurious failure. Locks are independent across classes.
//
// Entries are reference-counted and removed when the last holder releases,
// so the map does not grow with the class catalog.
type classLocker struct {
	mu    sync.Mutex
	locks map[string]*classLock
}

type classLock struct {
	mu   sync.Mutex
	refs int
}

func newClassLocker() *classLocker {
	return &classLocker{
		locks: make(map[string]*classLock),
	}
}

// Lock acquires the lock for classID, blocking until it is free. The
// returned function releases it.
func (l *classLocker) Lock(classID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[classID]
	if !ok {
		entry = &classLock{}
		l.locks[classID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, classID)
		}
		l.mu.Unlock()
	}
}
