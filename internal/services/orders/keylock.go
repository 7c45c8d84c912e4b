package orders

import "sync"

// keyLock serializes work per order id. Entries are dropped when the last holder leaves.
type keyLock struct {
	mu    sync.Mutex
	locks map[uint64]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[uint64]*keyLockEntry)}
}

// Lock blocks until id is free and returns the unlock func.
func (k *keyLock) Lock(id uint64) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyLockEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
