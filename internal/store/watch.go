package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

func (s *Store) watchLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Poll(); err != nil {
				s.log.Debug("poll failed", zap.Error(err))
			}
		}
	}
}

type foreignRow struct {
	key    string
	value  json.RawMessage
	rev    int64
	origin string
}

// Poll picks up rows written by other stores since the last poll. The newest
// persisted value replaces the cached one wholesale and is announced to
// subscribers as a foreign Event. Keys with an unflushed local write are
// skipped: that write is about to become the newest persisted value. So are
// rows older than the store's own last write to the key.
func (s *Store) Poll() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	since := s.lastRev
	hook := s.afterPollRead
	s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT key, value, revision, origin FROM kv WHERE revision > ? ORDER BY revision`, since,
	)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	var found []foreignRow
	for rows.Next() {
		var r foreignRow
		var value string
		if err := rows.Scan(&r.key, &value, &r.rev, &r.origin); err != nil {
			rows.Close()
			return fmt.Errorf("poll scan: %w", err)
		}
		r.value = json.RawMessage(value)
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("poll rows: %w", err)
	}
	rows.Close()

	if len(found) == 0 {
		return nil
	}
	if hook != nil {
		hook()
	}

	type delivery struct {
		event Event
		subs  []subscriber
	}
	var deliveries []delivery
	var corrupt []string

	s.mu.Lock()
	for _, r := range found {
		if r.rev > s.lastRev {
			s.lastRev = r.rev
		}
		if r.origin == s.origin {
			continue
		}
		if _, pending := s.dirty[r.key]; pending {
			s.log.Debug("ignoring foreign write over pending local write", zap.String("key", r.key))
			continue
		}
		if r.rev < s.written[r.key] {
			continue
		}
		if !json.Valid(r.value) {
			corrupt = append(corrupt, r.key)
			continue
		}
		if bytes.Equal(s.cache[r.key], r.value) {
			continue
		}
		s.cache[r.key] = r.value
		deliveries = append(deliveries, delivery{
			event: Event{Key: r.key, Value: r.value, Foreign: true},
			subs:  s.subscribersLocked(r.key, true),
		})
	}
	s.mu.Unlock()

	for _, key := range corrupt {
		s.discard(key, errors.New("invalid JSON from another writer"))
	}
	for _, d := range deliveries {
		s.log.Debug("foreign change", zap.String("key", d.event.Key))
		for _, sub := range d.subs {
			sub.fn(d.event)
		}
	}
	return nil
}
