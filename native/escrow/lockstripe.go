package escrow

import "sync"

// lockTable hands out one mutex per escrow id so operations on the same
// record are mutually exclusive while distinct records proceed concurrently.
// Locks are never released back; the table grows with the number of records
// touched, which is bounded by the record count itself.
type lockTable struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uint64]*sync.Mutex)}
}

func (t *lockTable) lockFor(id uint64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[id] = lock
	}
	return lock
}
