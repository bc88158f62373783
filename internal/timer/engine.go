package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sadopc/pulse/internal/model"
)

var (
	// ErrNothingToResume is returned by Resume when there is no paused run
	// with time left.
	ErrNothingToResume = errors.New("timer: nothing to resume")
	ErrInvalidMode     = errors.New("timer: invalid mode")
	ErrInvalidDuration = errors.New("timer: duration must be at least one second")
	ErrClosed          = errors.New("timer: engine closed")
)

// DefaultStaleAfter is how old persisted state may be before it is discarded
// on restart.
const DefaultStaleAfter = time.Hour

// StateStore persists the timer state. Watch reports state written by
// another view of the same data.
type StateStore interface {
	Load() (model.TimerState, error)
	Save(model.TimerState) error
	Watch(fn func(model.TimerState)) (cancel func())
}

// Status is the projection handed to subscribers.
type Status struct {
	IsRunning            bool
	Mode                 model.Mode
	SecondsLeft          int
	TotalDurationSeconds int
}

// Completion is delivered when a run counts down to zero.
type Completion struct {
	Mode model.Mode
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithPulse(p Pulse) Option {
	return func(e *Engine) { e.pulse = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithStaleAfter sets the age beyond which restored state is discarded.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) { e.staleAfter = d }
}

// Engine is a countdown timer whose remaining time is always derived from
// the wall-clock start of the run, never from counting pulses.
//
// opMu serializes operations end to end, including the Save call. mu guards
// the fields read by State and Status and is never held across a call out of
// the engine.
type Engine struct {
	opMu sync.Mutex

	mu         sync.Mutex
	state      model.TimerState
	gen        uint64
	stopPulse  func()
	closed     bool
	subs       map[int]func(Status)
	completion map[int]func(Completion)
	nextID     int

	store      StateStore
	now        func() time.Time
	pulse      Pulse
	staleAfter time.Duration
	log        *zap.Logger
	unwatch    func()
}

// New builds an idle engine watching st for state written by other views.
// Call Restore once handlers are registered to pick up persisted state.
func New(st StateStore, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		now:        time.Now,
		pulse:      TickerPulse{Interval: time.Second},
		staleAfter: DefaultStaleAfter,
		log:        zap.NewNop(),
		subs:       make(map[int]func(Status)),
		completion: make(map[int]func(Completion)),
		state:      model.IdleTimerState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("timer")
	e.unwatch = st.Watch(e.adopt)
	return e
}

// Restore loads persisted state. Recent running state is re-derived from its
// start timestamp and either keeps ticking or completes, firing the
// completion handlers; stale state is replaced by Idle.
func (e *Engine) Restore() error {
	e.opMu.Lock()
	status, done, err := e.restoreLocked()
	e.opMu.Unlock()
	e.emit(status, done)
	return err
}

func (e *Engine) restoreLocked() (*Status, *Completion, error) {
	if e.isClosed() {
		return nil, nil, ErrClosed
	}
	st, err := e.store.Load()
	if err != nil {
		// Load already fell back to the default.
		e.log.Warn("load timer state", zap.Error(err))
	}
	if st.Idle() {
		e.setState(model.IdleTimerState())
		return nil, nil, nil
	}

	now := e.now()
	age := now.Sub(st.UpdatedAt)
	if st.UpdatedAt.IsZero() || age > e.staleAfter || !st.Mode.Valid() {
		e.log.Info("discarding stale timer state", zap.Duration("age", age))
		idle := model.IdleTimerState()
		idle.UpdatedAt = now
		e.install(idle, false)
		s := statusOf(idle)
		return &s, nil, e.save(idle)
	}

	if !st.IsRunning || st.StartTimestamp == nil {
		st.IsRunning = false
		st.StartTimestamp = nil
		e.install(st, false)
		s := statusOf(st)
		return &s, nil, nil
	}

	e.setState(st)
	return e.advanceLocked(now, true)
}

// Peek loads persisted state for display only. Nothing is recomputed, saved
// or completed and no pulse starts; stale state reads as Idle. Status still
// derives the remaining time of a running state.
func (e *Engine) Peek() error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	if e.isClosed() {
		return ErrClosed
	}
	st, err := e.store.Load()
	if err != nil {
		e.log.Warn("load timer state", zap.Error(err))
	}
	if !st.Idle() && (st.UpdatedAt.IsZero() || e.now().Sub(st.UpdatedAt) > e.staleAfter || !st.Mode.Valid()) {
		st = model.IdleTimerState()
	}
	e.setState(st)
	return nil
}

func (e *Engine) setState(st model.TimerState) {
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
}

// Start begins a run of mode at its full duration, replacing any current run.
func (e *Engine) Start(d Durations, mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	total := int(d.For(mode) / time.Second)
	if total < 1 {
		return ErrInvalidDuration
	}

	e.opMu.Lock()
	if e.isClosed() {
		e.opMu.Unlock()
		return ErrClosed
	}
	now := e.now()
	start := now
	st := model.TimerState{
		Mode:                 mode,
		IsRunning:            true,
		StartTimestamp:       &start,
		TotalDurationSeconds: total,
		SecondsLeft:          total,
		UpdatedAt:            now,
	}
	e.install(st, true)
	err := e.save(st)
	e.opMu.Unlock()

	e.log.Debug("timer started", zap.String("mode", string(mode)), zap.Int("seconds", total))
	e.emit(ptr(statusOf(st)), nil)
	return err
}

// Reset is Start without regard to the current run.
func (e *Engine) Reset(d Durations, mode model.Mode) error {
	return e.Start(d, mode)
}

// SwitchMode resets the timer into mode.
func (e *Engine) SwitchMode(d Durations, mode model.Mode) error {
	return e.Reset(d, mode)
}

// Pause freezes the remaining time. Pausing a run whose time is already up
// completes it instead.
func (e *Engine) Pause() error {
	e.opMu.Lock()
	if e.isClosed() {
		e.opMu.Unlock()
		return ErrClosed
	}
	st := e.State()
	if !st.IsRunning {
		e.opMu.Unlock()
		return nil
	}

	now := e.now()
	left := secondsLeft(st, now)
	if left == 0 {
		status, done, err := e.advanceLocked(now, false)
		e.opMu.Unlock()
		e.emit(status, done)
		return err
	}

	st.IsRunning = false
	st.StartTimestamp = nil
	st.SecondsLeft = left
	st.UpdatedAt = now
	e.install(st, false)
	err := e.save(st)
	e.opMu.Unlock()

	e.log.Debug("timer paused", zap.Int("secondsLeft", left))
	e.emit(ptr(statusOf(st)), nil)
	return err
}

// Resume continues a paused run, back-dating the start so the time elapsed
// before the pause is preserved. Resuming a running timer recomputes it and
// completes a run whose time ran out.
func (e *Engine) Resume() error {
	e.opMu.Lock()
	if e.isClosed() {
		e.opMu.Unlock()
		return ErrClosed
	}
	st := e.State()
	if st.IsRunning {
		// Still running, possibly across a suspension: catch up now.
		status, done, err := e.advanceLocked(e.now(), false)
		e.opMu.Unlock()
		e.emit(status, done)
		return err
	}
	if st.SecondsLeft <= 0 || st.TotalDurationSeconds <= 0 {
		e.opMu.Unlock()
		return ErrNothingToResume
	}

	now := e.now()
	elapsed := time.Duration(st.TotalDurationSeconds-st.SecondsLeft) * time.Second
	start := now.Add(-elapsed)
	st.IsRunning = true
	st.StartTimestamp = &start
	st.UpdatedAt = now
	e.install(st, true)
	err := e.save(st)
	e.opMu.Unlock()

	e.log.Debug("timer resumed", zap.Int("secondsLeft", st.SecondsLeft))
	e.emit(ptr(statusOf(st)), nil)
	return err
}

// Tick recomputes the remaining time from the start timestamp. It completes
// the run once no time is left, however long it has been since the last tick.
func (e *Engine) Tick() error {
	e.opMu.Lock()
	if e.isClosed() {
		e.opMu.Unlock()
		return ErrClosed
	}
	status, done, err := e.advanceLocked(e.now(), false)
	e.opMu.Unlock()
	e.emit(status, done)
	return err
}

// tickGen is the pulse callback. Pulses from a cancelled generation are
// ignored.
func (e *Engine) tickGen(gen uint64) {
	e.opMu.Lock()
	e.mu.Lock()
	current := e.gen == gen && !e.closed
	e.mu.Unlock()
	if !current {
		e.opMu.Unlock()
		return
	}
	status, done, err := e.advanceLocked(e.now(), false)
	e.opMu.Unlock()
	if err != nil {
		e.log.Warn("persist timer state", zap.Error(err))
	}
	e.emit(status, done)
}

// advanceLocked derives the remaining time at now. The returned status is nil
// when nothing changed; done is non-nil when the run completed. On restore the
// pulse is (re)started for a run that still has time left.
func (e *Engine) advanceLocked(now time.Time, restoring bool) (*Status, *Completion, error) {
	st := e.State()
	if !st.IsRunning || st.StartTimestamp == nil {
		return nil, nil, nil
	}

	left := secondsLeft(st, now)
	if left > 0 {
		if restoring {
			st.SecondsLeft = left
			e.install(st, true)
			s := statusOf(st)
			return &s, nil, nil
		}
		if left == st.SecondsLeft {
			return nil, nil, nil
		}
		st.SecondsLeft = left
		e.mu.Lock()
		e.state = st
		e.mu.Unlock()
		s := statusOf(st)
		return &s, nil, nil
	}

	st.IsRunning = false
	st.StartTimestamp = nil
	st.SecondsLeft = 0
	st.UpdatedAt = now
	e.install(st, false)
	err := e.save(st)

	e.log.Info("timer completed", zap.String("mode", string(st.Mode)))
	s := statusOf(st)
	return &s, &Completion{Mode: st.Mode}, err
}

// adopt replaces the local state with state written by another view.
func (e *Engine) adopt(st model.TimerState) {
	e.opMu.Lock()
	if e.isClosed() {
		e.opMu.Unlock()
		return
	}
	running := st.IsRunning && st.StartTimestamp != nil
	if running && secondsLeft(st, e.now()) == 0 {
		// The other view completes its own run; show it finished here.
		st.IsRunning = false
		st.StartTimestamp = nil
		st.SecondsLeft = 0
		running = false
	}
	e.install(st, running)
	e.opMu.Unlock()

	e.log.Debug("adopted timer state from another view", zap.String("mode", string(st.Mode)))
	e.emit(ptr(statusOf(st)), nil)
}

// install sets the state and starts or cancels the pulse. A new pulse
// generation makes any callback still in flight from the old one a no-op.
func (e *Engine) install(st model.TimerState, run bool) {
	e.mu.Lock()
	e.state = st
	e.gen++
	gen := e.gen
	stop := e.stopPulse
	e.stopPulse = nil
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
	if !run {
		return
	}
	stopNew := e.pulse.Every(func() { e.tickGen(gen) })

	e.mu.Lock()
	if e.gen == gen && !e.closed {
		e.stopPulse = stopNew
		stopNew = nil
	}
	e.mu.Unlock()
	if stopNew != nil {
		stopNew()
	}
}

func (e *Engine) save(st model.TimerState) error {
	if err := e.store.Save(st); err != nil {
		e.log.Warn("persist timer state", zap.Error(err))
		return fmt.Errorf("persist timer state: %w", err)
	}
	return nil
}

func (e *Engine) emit(status *Status, done *Completion) {
	if status == nil && done == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	subs := make([]func(Status), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	var handlers []func(Completion)
	if done != nil {
		handlers = make([]func(Completion), 0, len(e.completion))
		for _, fn := range e.completion {
			handlers = append(handlers, fn)
		}
	}
	e.mu.Unlock()

	if status != nil {
		for _, fn := range subs {
			fn(*status)
		}
	}
	if done != nil {
		for _, fn := range handlers {
			fn(*done)
		}
	}
}

// State returns the last computed timer state.
func (e *Engine) State() model.TimerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the projection with the remaining time derived at the
// current instant. It does not persist anything.
func (e *Engine) Status() Status {
	st := e.State()
	if st.IsRunning && st.StartTimestamp != nil {
		st.SecondsLeft = secondsLeft(st, e.now())
	}
	return statusOf(st)
}

// Subscribe calls fn with the projection after every change.
func (e *Engine) Subscribe(fn func(Status)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// OnComplete calls fn whenever a run counts down to zero. Handlers run after
// the engine has released its locks, so they may start the next run.
func (e *Engine) OnComplete(fn func(Completion)) (unsubscribe func()) {
	id := e.addCompletion(fn)
	return func() {
		e.mu.Lock()
		delete(e.completion, id)
		e.mu.Unlock()
	}
}

func (e *Engine) addCompletion(fn func(Completion)) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.completion[id] = fn
	return id
}

// Close cancels the pulse and stops watching for state from other views.
// No subscriber or handler is called after Close returns.
func (e *Engine) Close() {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.gen++
	stop := e.stopPulse
	e.stopPulse = nil
	e.subs = make(map[int]func(Status))
	e.completion = make(map[int]func(Completion))
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
	if e.unwatch != nil {
		e.unwatch()
	}
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// secondsLeft derives the remaining whole seconds at now, clamped to
// [0, total].
func secondsLeft(st model.TimerState, now time.Time) int {
	if st.StartTimestamp == nil {
		return st.SecondsLeft
	}
	elapsed := int(now.Sub(*st.StartTimestamp) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	left := st.TotalDurationSeconds - elapsed
	if left < 0 {
		return 0
	}
	if left > st.TotalDurationSeconds {
		return st.TotalDurationSeconds
	}
	return left
}

func statusOf(st model.TimerState) Status {
	return Status{
		IsRunning:            st.IsRunning,
		Mode:                 st.Mode,
		SecondsLeft:          st.SecondsLeft,
		TotalDurationSeconds: st.TotalDurationSeconds,
	}
}

func ptr[T any](v T) *T { return &v }
