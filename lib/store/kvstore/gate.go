package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/offlinedb/lib/engine"
	"github.com/ValentinKolb/offlinedb/lib/store"
)

// waitForReady returns the handle once the database is open.
//
// It wakes up when the open sequence settles and otherwise polls every
// ReadyPollInterval, at most ReadyPollAttempts times. A failed or closed store is
// reported right away, ctx cancellation aborts the wait with ctx.Err().
func (s *storeImpl[T]) waitForReady(ctx context.Context) (engine.IConn, error) {
	if conn, err := s.current(); conn != nil || err != nil {
		return conn, err
	}

	ticker := time.NewTicker(s.opts.ReadyPollInterval)
	defer ticker.Stop()

	settled := s.settled
	polls := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-settled:
			// a closed channel is always ready, stop selecting on it
			settled = nil
		case <-ticker.C:
			polls++
			log.Debugf("database '%s' not open, retrying (%d/%d)", s.name, polls, s.opts.ReadyPollAttempts)
		}

		if conn, err := s.current(); conn != nil || err != nil {
			return conn, err
		}
		if polls >= s.opts.ReadyPollAttempts {
			log.Warningf("database '%s' not open after %d polls", s.name, polls)
			return nil, s.notReady()
		}
	}
}

// current returns the handle if the store is ready, an error if it can never
// become ready and neither while the open sequence is still running.
func (s *storeImpl[T]) current() (engine.IConn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.State() {
	case store.StateReady:
		return s.conn, nil
	case store.StateFailed:
		return nil, s.notReady()
	case store.StateClosed:
		return nil, store.NewError(store.RetCClosed, fmt.Sprintf("store '%s' is closed", s.name))
	default:
		return nil, nil
	}
}

func (s *storeImpl[T]) notReady() error {
	return store.NewError(store.RetCNotReady, fmt.Sprintf("store '%s' could not be initialized", s.name))
}
