package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// lockTable hands out one exclusive lock per account id, created lazily on
// first use. Locks are buffered channels of capacity one so acquisition can
// race against a deadline and context cancellation; sync.Mutex cannot be
// waited on with a timeout.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (t *lockTable) get(accountID string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.locks[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[accountID] = ch
	}
	return ch
}

// acquire takes the lock for accountID, giving up after wait. Returns ErrBusy
// on timeout and the context error on cancellation.
func (t *lockTable) acquire(ctx context.Context, accountID string, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case t.get(accountID) <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *lockTable) release(accountID string) {
	<-t.get(accountID)
}

// acquireAll takes the locks for every id in ascending order so that two
// operations over the same accounts can never deadlock, whichever side is
// source and whichever is destination. On failure every lock taken so far is
// released.
func (t *lockTable) acquireAll(ctx context.Context, accountIDs []string, wait time.Duration) error {
	ordered := make([]string, len(accountIDs))
	copy(ordered, accountIDs)
	sort.Strings(ordered)

	for i, id := range ordered {
		if err := t.acquire(ctx, id, wait); err != nil {
			for _, held := range ordered[:i] {
				t.release(held)
			}
			return err
		}
	}
	return nil
}

func (t *lockTable) releaseAll(accountIDs []string) {
	for _, id := range accountIDs {
		t.release(id)
	}
}

// forget drops the lock entry of a deleted account. Must only be called while
// holding the account's lock; the held token is discarded with the entry, so
// the caller must not release afterwards. Waiters still parked on the old
// channel time out with ErrBusy and then observe the account as gone.
func (t *lockTable) forget(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, accountID)
}
