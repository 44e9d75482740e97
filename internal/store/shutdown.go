package store

import (
	"context"
	"fmt"
)

// Shutdown drains the store and closes it. See the package doc for the
// state machine.
//
// If ctx ends first, Shutdown returns ctx.Err() but the shutdown carries on;
// a later call, or Done, observes the final result. Every call after the
// first returns that same result.
func (s *Store) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		go s.shutdown()
	})

	select {
	case <-s.done:
		return s.shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the shutdown result once Done is closed, nil before.
func (s *Store) Err() error {
	select {
	case <-s.done:
		return s.shutdownErr
	default:
		return nil
	}
}

func (s *Store) shutdown() {
	defer close(s.done)

	s.setState(StateDraining)
	// Not bounded: a pending commit always resolves, because the flusher
	// resolves every queued record whether its write succeeds or fails.
	_ = s.pipe.Drain(context.Background())

	var errs []error
	if err := s.pipe.Err(); err != nil {
		errs = append(errs, fmt.Errorf("commit not durable: %w", err))
	}
	ps := s.pipe.Stats()
	if ps.Pending != 0 || ps.Applied+ps.Failed != ps.Admitted {
		errs = append(errs, fmt.Errorf("%w: admitted=%d applied=%d failed=%d pending=%d buffered=%d",
			ErrDrainGateBypassed, ps.Admitted, ps.Applied, ps.Failed, ps.Pending, ps.Buffered))
	}

	s.setState(StateClosing)
	if err := s.handle.Close(); err != nil {
		errs = append(errs, err)
	}
	ss := s.handle.Stats()
	if ss.Flushed+ss.Failed != ss.Enqueued || ss.Enqueued != ps.Admitted || ss.Flushed != ps.Durable {
		errs = append(errs, fmt.Errorf("%w: admitted=%d enqueued=%d flushed=%d durable=%d failed=%d",
			ErrDrainGateBypassed, ps.Admitted, ss.Enqueued, ss.Flushed, ps.Durable, ss.Failed))
	}

	if len(errs) > 0 {
		s.shutdownErr = &ShutdownError{StoreID: s.id, Errs: errs}
		s.logger.Error("shutdown failed", "error", s.shutdownErr)
		s.setState(StateFailed)
		return
	}

	s.logger.Info("shutdown complete", "applied", ps.Applied, "batches", ss.Batches)
	s.setState(StateClosed)
}
