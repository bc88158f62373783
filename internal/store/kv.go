package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// raw returns the current bytes for key: the cached copy, or the persisted row.
// A nil result with a nil error means the key has never been written.
func (s *Store) raw(key string) (json.RawMessage, error) {
	s.mu.Lock()
	if v, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	var value string
	var rev int64
	err := s.db.QueryRow(`SELECT value, revision FROM kv WHERE key = ?`, key).Scan(&value, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		perr := &PersistenceError{Key: key, Op: "load", Err: err}
		s.report(perr)
		return nil, perr
	}

	data := json.RawMessage(value)
	if !json.Valid(data) {
		return nil, s.discard(key, errors.New("invalid JSON"))
	}

	s.mu.Lock()
	// A concurrent write may have cached a newer value in the meantime.
	if v, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.cache[key] = data
	s.mu.Unlock()
	return data, nil
}

// discard drops unreadable bytes for key from memory and disk and reports a
// CorruptedStateError. A pending local write for the key is left alone.
func (s *Store) discard(key string, cause error) error {
	cerr := &CorruptedStateError{Key: key, Err: cause}

	s.mu.Lock()
	_, pending := s.dirty[key]
	if !pending {
		delete(s.cache, key)
	}
	s.mu.Unlock()

	if !pending {
		if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			s.log.Warn("delete corrupted row", zap.String("key", key), zap.Error(err))
		}
	}
	s.report(cerr)
	return cerr
}

// LoadRaw returns the bytes stored under key, or nil when it was never written.
func (s *Store) LoadRaw(key string) (json.RawMessage, error) {
	return s.raw(key)
}

// Batch collects writes to several keys so they are applied, persisted and
// announced together.
type Batch struct {
	s      *Store
	writes map[string]json.RawMessage
	order  []string
}

func (b *Batch) get(key string) (json.RawMessage, error) {
	if v, ok := b.writes[key]; ok {
		return v, nil
	}
	return b.s.raw(key)
}

func (b *Batch) set(key string, value json.RawMessage) {
	if _, ok := b.writes[key]; !ok {
		b.order = append(b.order, key)
	}
	b.writes[key] = value
}

// Update runs fn against a fresh Batch. If fn returns an error nothing is
// written. Otherwise every key set in the batch is installed in memory, queued
// for persistence, and delivered to its subscribers in the order it was first
// set. Subscribers must not call Update themselves.
func (s *Store) Update(fn func(b *Batch) error) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	b := &Batch{s: s, writes: make(map[string]json.RawMessage)}
	if err := fn(b); err != nil {
		return err
	}
	if len(b.order) == 0 {
		return nil
	}

	type delivery struct {
		event Event
		subs  []subscriber
	}
	deliveries := make([]delivery, 0, len(b.order))

	s.mu.Lock()
	for _, key := range b.order {
		value := b.writes[key]
		s.cache[key] = value
		s.seq++
		s.dirty[key] = s.seq
		deliveries = append(deliveries, delivery{
			event: Event{Key: key, Value: value},
			subs:  s.subscribersLocked(key, false),
		})
	}
	s.mu.Unlock()

	s.kick()

	for _, d := range deliveries {
		for _, sub := range d.subs {
			sub.fn(d.event)
		}
	}
	return nil
}

// PutRaw replaces the bytes stored under key.
func (s *Store) PutRaw(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("put %q: invalid JSON", key)
	}
	return s.Update(func(b *Batch) error {
		b.set(key, value)
		return nil
	})
}

// SubscribeRaw registers fn for every change to key, local or foreign.
func (s *Store) SubscribeRaw(key string, fn func(Event)) (unsubscribe func()) {
	return s.subscribe(key, subscriber{fn: fn})
}

func (s *Store) subscribe(key string, sub subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]subscriber)
	}
	s.subs[key][id] = sub

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
		if len(s.subs[key]) == 0 {
			delete(s.subs, key)
		}
	}
}

func (s *Store) subscribersLocked(key string, foreign bool) []subscriber {
	m := s.subs[key]
	if len(m) == 0 {
		return nil
	}
	out := make([]subscriber, 0, len(m))
	for _, sub := range m {
		if sub.foreignOnly && !foreign {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// Dirty reports whether key has an in-memory value not yet persisted.
func (s *Store) Dirty(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dirty[key]
	return ok
}

// Flushed reports whether every in-memory write has been persisted.
func (s *Store) Flushed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) == 0
}
