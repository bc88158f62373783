package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

func (s *Store) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// flushLoop persists dirty keys whenever it is woken, retrying failed writes
// with exponential backoff. It makes a last attempt when the store closes.
func (s *Store) flushLoop() {
	defer s.wg.Done()

	var retryC <-chan time.Time
	failures := 0

	for {
		select {
		case <-s.stop:
			s.flushOnce()
			return
		case <-s.wake:
		case <-retryC:
		}

		if s.opts.flushInterval > 0 {
			select {
			case <-time.After(s.opts.flushInterval):
			case <-s.stop:
				s.flushOnce()
				return
			}
		}

		if err := s.flushOnce(); err == nil {
			failures = 0
			retryC = nil
			continue
		}

		failures++
		if failures > s.opts.maxRetries {
			s.log.Error("giving up on write until next update", zap.Int("attempts", failures))
			failures = 0
			retryC = nil
			continue
		}
		delay := backoff(s.opts.retryBase, s.opts.retryMax, failures)
		s.log.Debug("retrying write", zap.Int("attempt", failures), zap.Duration("delay", delay))
		retryC = time.After(delay)
	}
}

func backoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

func (s *Store) flushOnce() error {
	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.finishFlushLocked(nil)
		s.mu.Unlock()
		return nil
	}
	pending := make(map[string]uint64, len(s.dirty))
	values := make(map[string]json.RawMessage, len(s.dirty))
	for k, seq := range s.dirty {
		pending[k] = seq
		values[k] = s.cache[k]
	}
	s.mu.Unlock()

	revs, err := s.write(values)

	s.mu.Lock()
	if err == nil {
		for k, rev := range revs {
			s.written[k] = rev
		}
		for k, seq := range pending {
			// A newer update to k stays dirty for the next round.
			if s.dirty[k] == seq {
				delete(s.dirty, k)
			}
		}
	}
	s.finishFlushLocked(err)
	s.mu.Unlock()

	if err != nil {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.report(&PersistenceError{Key: strings.Join(keys, ","), Op: "write", Err: err})
	}
	return err
}

func (s *Store) finishFlushLocked(err error) {
	s.flushErr = err
	close(s.flushDone)
	s.flushDone = make(chan struct{})
}

// write persists values in one transaction, giving each key a new revision.
// It returns the revision written for each key.
func (s *Store) write(values map[string]json.RawMessage) (map[string]int64, error) {
	s.mu.Lock()
	hook := s.beforeWrite
	s.mu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var rev int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(revision), 0) FROM kv`).Scan(&rev); err != nil {
		return nil, fmt.Errorf("read revision: %w", err)
	}

	revs := make(map[string]int64, len(keys))
	now := s.now().UTC().Format(time.RFC3339Nano)
	for _, k := range keys {
		rev++
		_, err := tx.Exec(
			`INSERT INTO kv (key, value, revision, origin, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				revision = excluded.revision,
				origin = excluded.origin,
				updated_at = excluded.updated_at`,
			k, string(values[k]), rev, s.origin, now,
		)
		if err != nil {
			return nil, fmt.Errorf("upsert %q: %w", k, err)
		}
		revs[k] = rev
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return revs, nil
}

// Flush blocks until every write issued before the call has been persisted,
// the writer reports a failure, or ctx is done.
func (s *Store) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		if len(s.dirty) == 0 {
			s.mu.Unlock()
			return nil
		}
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		done := s.flushDone
		s.mu.Unlock()

		s.kick()

		select {
		case <-done:
			s.mu.Lock()
			err := s.flushErr
			s.mu.Unlock()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
