package session

import "sync"

// patientLocks hands out one mutex per patient. Entries are dropped when
// the last holder or waiter releases them.
type patientLocks struct {
	mu    sync.Mutex
	locks map[string]*patientLock
}

type patientLock struct {
	mu   sync.Mutex
	refs int
}

func newPatientLocks() *patientLocks {
	return &patientLocks{locks: make(map[string]*patientLock)}
}

// Lock blocks until the caller holds the patient's lock and returns the
// function that releases it.
func (l *patientLocks) Lock(patientID string) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.locks[patientID]
	if !ok {
		pl = &patientLock{}
		l.locks[patientID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, patientID)
		}
		l.mu.Unlock()
	}
}

// size returns the number of patients with a held or awaited lock.
func (l *patientLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
