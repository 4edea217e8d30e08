package manager

import "sync"

// idLocks serializes lifecycle transitions per bot id. Start and stop
// queue behind an in-flight transition; delete and the lazy liveness
// repair use TryAcquire so they reject instead of waiting.
type idLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newIDLocks() *idLocks {
	return &idLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *idLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// Acquire blocks until the id's transition lock is held.
func (l *idLocks) Acquire(id string) func() {
	m := l.get(id)
	m.Lock()
	return m.Unlock
}

// TryAcquire returns a release func, or nil when a transition is already
// in flight for the id.
func (l *idLocks) TryAcquire(id string) func() {
	m := l.get(id)
	if !m.TryLock() {
		return nil
	}
	return m.Unlock
}

// Forget drops the lock entry for a deleted bot.
func (l *idLocks) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, id)
}
