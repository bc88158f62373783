package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Key names a document and the Go type stored under it.
type Key[T any] struct {
	Name    string
	Default func() T
}

func NewKey[T any](name string, def func() T) Key[T] {
	return Key[T]{Name: name, Default: def}
}

// Zero returns the key's default value.
func (k Key[T]) Zero() T {
	if k.Default != nil {
		return k.Default()
	}
	var zero T
	return zero
}

func decode[T any](s *Store, k Key[T], data json.RawMessage) (T, error) {
	if data == nil {
		return k.Zero(), nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return k.Zero(), s.discard(k.Name, err)
	}
	return v, nil
}

// Load returns the value stored under k. Missing data yields the default with
// a nil error; unreadable or corrupted data yields the default together with
// the error that was also sent to the store's error channel.
func Load[T any](s *Store, k Key[T]) (T, error) {
	data, err := s.raw(k.Name)
	if err != nil {
		return k.Zero(), err
	}
	return decode(s, k, data)
}

// Get reads k inside a batch, seeing values set earlier in the same batch.
// Corrupted data is replaced by the default; a failed read is returned.
func Get[T any](b *Batch, k Key[T]) (T, error) {
	data, err := b.get(k.Name)
	if err != nil {
		var cerr *CorruptedStateError
		if errors.As(err, &cerr) {
			return k.Zero(), nil
		}
		return k.Zero(), err
	}
	// A decode failure is reported and discarded; continue from the default.
	v, _ := decode(b.s, k, data)
	return v, nil
}

// Put sets k inside a batch.
func Put[T any](b *Batch, k Key[T], v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", k.Name, err)
	}
	b.set(k.Name, data)
	return nil
}

// Update applies fn to the current value of k and stores the result. If fn
// returns an error nothing is written and the error is returned.
func Update[T any](s *Store, k Key[T], fn func(T) (T, error)) (T, error) {
	var out T
	err := s.Update(func(b *Batch) error {
		cur, err := Get(b, k)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		out = next
		return Put(b, k, next)
	})
	if err != nil {
		return k.Zero(), err
	}
	return out, nil
}

// Set replaces the value stored under k.
func Set[T any](s *Store, k Key[T], v T) error {
	return s.Update(func(b *Batch) error {
		return Put(b, k, v)
	})
}

// Subscribe calls fn with the new value after every change to k.
func Subscribe[T any](s *Store, k Key[T], fn func(T)) (unsubscribe func()) {
	return s.subscribe(k.Name, subscriber{fn: typedHandler(s, k, fn)})
}

// SubscribeForeign is like Subscribe but only reports changes written by
// other stores.
func SubscribeForeign[T any](s *Store, k Key[T], fn func(T)) (unsubscribe func()) {
	return s.subscribe(k.Name, subscriber{fn: typedHandler(s, k, fn), foreignOnly: true})
}

func typedHandler[T any](s *Store, k Key[T], fn func(T)) func(Event) {
	return func(ev Event) {
		v, err := decode(s, k, ev.Value)
		if err != nil {
			return
		}
		fn(v)
	}
}

// Doc binds a key to a store so it can be handed to code that only needs to
// load and save one document.
type Doc[T any] struct {
	s *Store
	k Key[T]
}

func Bind[T any](s *Store, k Key[T]) Doc[T] {
	return Doc[T]{s: s, k: k}
}

func (d Doc[T]) Load() (T, error) {
	return Load(d.s, d.k)
}

func (d Doc[T]) Save(v T) error {
	return Set(d.s, d.k, v)
}

// Watch reports changes written by other stores.
func (d Doc[T]) Watch(fn func(T)) (cancel func()) {
	return SubscribeForeign(d.s, d.k, fn)
}
