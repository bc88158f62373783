package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const currentVersion = 1

// ErrClosed is returned by writes issued after Close.
var ErrClosed = errors.New("store closed")

// Store maps string keys to JSON documents persisted in SQLite.
//
// Writes are applied to an in-memory copy first, handed to subscribers, and
// flushed to disk by a background writer. Changes made by other stores opened on
// the same database file are picked up by polling and win over the cached copy.
type Store struct {
	db     *sql.DB
	origin string
	opts   options
	log    *zap.Logger

	// updateMu serializes Batch calls so subscribers see writes in call order.
	updateMu sync.Mutex

	mu        sync.Mutex
	cache     map[string]json.RawMessage
	dirty     map[string]uint64
	seq       uint64
	subs      map[string]map[int]subscriber
	nextSub   int
	lastRev   int64
	// written is the revision of each key's last local write.
	written   map[string]int64
	flushDone chan struct{}
	flushErr  error
	closed    bool

	wake chan struct{}
	stop chan struct{}
	errs chan error
	wg   sync.WaitGroup

	// beforeWrite lets tests fail the writer.
	beforeWrite   func() error
	// afterPollRead runs between reading and applying polled rows in tests.
	afterPollRead func()
}

type subscriber struct {
	fn          func(Event)
	foreignOnly bool
}

// Event describes a change to a key.
type Event struct {
	Key   string
	Value json.RawMessage
	// Foreign is true when the change was written by another store.
	Foreign bool
}

// New opens (or creates) the SQLite database at dbPath, runs migrations and
// starts the background writer and watcher.
func New(dbPath string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{
		db:        db,
		origin:    uuid.New().String(),
		opts:      o,
		log:       o.logger.Named("store"),
		cache:     make(map[string]json.RawMessage),
		dirty:     make(map[string]uint64),
		written:   make(map[string]int64),
		subs:      make(map[string]map[int]subscriber),
		flushDone: make(chan struct{}),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		errs:      make(chan error, o.errBuffer),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := db.QueryRow(`SELECT COALESCE(MAX(revision), 0) FROM kv`).Scan(&s.lastRev); err != nil {
		db.Close()
		return nil, fmt.Errorf("read revision: %w", err)
	}

	s.wg.Add(1)
	go s.flushLoop()
	if o.pollInterval > 0 {
		s.wg.Add(1)
		go s.watchLoop()
	}

	s.log.Debug("store opened", zap.String("path", dbPath), zap.String("origin", s.origin))
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory(opts ...Option) (*Store, error) {
	return New(":memory:", opts...)
}

// Origin identifies this store instance in persisted rows.
func (s *Store) Origin() string { return s.origin }

// Close stops the watcher, flushes pending writes and closes the database.
// No subscriber is called after Close returns.
func (s *Store) Close() error {
	s.updateMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.updateMu.Unlock()
		return nil
	}
	s.closed = true
	s.subs = make(map[string]map[int]subscriber)
	s.mu.Unlock()
	s.updateMu.Unlock()

	close(s.stop)
	s.wg.Wait()

	var flushErr error
	s.mu.Lock()
	if len(s.dirty) > 0 {
		flushErr = fmt.Errorf("%d key(s) not flushed", len(s.dirty))
		if s.flushErr != nil {
			flushErr = fmt.Errorf("%w: %w", flushErr, s.flushErr)
		}
	}
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return err
	}
	return flushErr
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS kv (
		key         TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		revision    INTEGER NOT NULL,
		origin      TEXT NOT NULL,
		updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_kv_revision ON kv(revision);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// DefaultDBPath returns ~/.config/pulse/pulse.db
func DefaultDBPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "pulse", "pulse.db"), nil
}

// Errors delivers persistence and corruption errors. The channel is buffered;
// errors are dropped (and logged) when nobody drains it.
func (s *Store) Errors() <-chan error { return s.errs }

func (s *Store) report(err error) {
	s.log.Warn("store error", zap.Error(err))
	if s.opts.onError != nil {
		s.opts.onError(err)
	}
	select {
	case s.errs <- err:
	default:
		s.log.Debug("error channel full, dropping", zap.Error(err))
	}
}

func (s *Store) now() time.Time { return s.opts.clock() }
