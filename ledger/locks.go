package ledger

import "sync"

// customerLocks serializes ledger mutations per customer within this
// process. Redemption and the duplicate-type check are read-then-write
// sequences; without serialization two concurrent redemptions could
// both read the same points snapshot and over-redeem. Entries are
// reference counted so the map does not grow with the customer base.
type customerLocks struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newCustomerLocks() *customerLocks {
	return &customerLocks{held: make(map[string]*lockEntry)}
}

func (l *customerLocks) lock(customerID string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.held[customerID]
	if !ok {
		e = &lockEntry{}
		l.held[customerID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.held, customerID)
		}
		l.mu.Unlock()
	}
}
