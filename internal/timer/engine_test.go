package timer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// manualPulse records every scheduled callback so tests can fire them by hand,
// including callbacks that have already been stopped.
type manualPulse struct {
	mu    sync.Mutex
	fns   []func()
	alive []bool
}

func (p *manualPulse) Every(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.fns)
	p.fns = append(p.fns, fn)
	p.alive = append(p.alive, true)
	return func() {
		p.mu.Lock()
		p.alive[i] = false
		p.mu.Unlock()
	}
}

func (p *manualPulse) Fire() {
	p.mu.Lock()
	var fns []func()
	for i, fn := range p.fns {
		if p.alive[i] {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// FireStale runs callbacks whose pulse was already stopped, as a ticker
// goroutine racing with cancellation would.
func (p *manualPulse) FireStale() {
	p.mu.Lock()
	var fns []func()
	for i, fn := range p.fns {
		if !p.alive[i] {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *manualPulse) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, a := range p.alive {
		if a {
			n++
		}
	}
	return n
}

type memStateStore struct {
	mu       sync.Mutex
	state    model.TimerState
	saves    int
	watchers []func(model.TimerState)
	failSave error
}

func (m *memStateStore) Load() (model.TimerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memStateStore) Save(st model.TimerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	m.state = st
	m.saves++
	return nil
}

func (m *memStateStore) Watch(fn func(model.TimerState)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
	return func() {}
}

// Foreign simulates another view writing st.
func (m *memStateStore) Foreign(st model.TimerState) {
	m.mu.Lock()
	m.state = st
	watchers := append([]func(model.TimerState){}, m.watchers...)
	m.mu.Unlock()
	for _, fn := range watchers {
		fn(st)
	}
}

func (m *memStateStore) Saved() model.TimerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

type harness struct {
	engine *Engine
	clock  *fakeClock
	pulse  *manualPulse
	store  *memStateStore

	mu          sync.Mutex
	completions []Completion
}

func newHarness(t *testing.T, initial *model.TimerState) *harness {
	t.Helper()
	h := &harness{
		clock: newFakeClock(),
		pulse: &manualPulse{},
		store: &memStateStore{state: model.IdleTimerState()},
	}
	if initial != nil {
		h.store.state = *initial
	}
	h.engine = New(h.store, WithClock(h.clock.Now), WithPulse(h.pulse))
	h.engine.OnComplete(func(c Completion) {
		h.mu.Lock()
		h.completions = append(h.completions, c)
		h.mu.Unlock()
	})
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) Completions() []Completion {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Completion(nil), h.completions...)
}

var oneMinute = Durations{Focus: time.Minute, Break: 30 * time.Second}

// ============================================================
// Start / Tick
// ============================================================

func TestStartSetsFullDuration(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.Start(oneMinute, model.ModeFocus); err != nil {
		t.Fatal(err)
	}

	st := h.engine.State()
	if !st.IsRunning || st.Mode != model.ModeFocus {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.TotalDurationSeconds != 60 || st.SecondsLeft != 60 {
		t.Fatalf("expected 60/60, got %d/%d", st.SecondsLeft, st.TotalDurationSeconds)
	}
	if st.StartTimestamp == nil || !st.StartTimestamp.Equal(h.clock.Now()) {
		t.Fatal("start timestamp should be now")
	}
	if h.store.Saved().TotalDurationSeconds != 60 {
		t.Fatal("start was not persisted")
	}
	if h.pulse.Active() != 1 {
		t.Fatalf("expected one active pulse, got %d", h.pulse.Active())
	}
}

func TestStartBreakUsesBreakDuration(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeBreak)
	if got := h.engine.State().TotalDurationSeconds; got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.Start(oneMinute, model.Mode("nap")); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if err := h.engine.Start(Durations{}, model.ModeFocus); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if !h.engine.State().Idle() {
		t.Fatal("failed start changed state")
	}
}

func TestTickDerivesFromTimestamp(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)

	h.clock.Advance(10 * time.Second)
	// Many pulses within the same instant must not count down further.
	for i := 0; i < 100; i++ {
		h.pulse.Fire()
	}
	if got := h.engine.State().SecondsLeft; got != 50 {
		t.Fatalf("expected 50 seconds left, got %d", got)
	}
}

func TestTickAfterSuspensionCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)

	h.clock.Advance(90 * time.Second)
	if err := h.engine.Tick(); err != nil {
		t.Fatal(err)
	}

	st := h.engine.State()
	if st.SecondsLeft != 0 {
		t.Fatalf("expected 0 seconds left, got %d", st.SecondsLeft)
	}
	if st.IsRunning {
		t.Fatal("timer should have stopped")
	}
	done := h.Completions()
	if len(done) != 1 || done[0].Mode != model.ModeFocus {
		t.Fatalf("expected one focus completion, got %v", done)
	}
	if !h.store.Saved().Completed() {
		t.Fatal("completion was not persisted")
	}
	if h.pulse.Active() != 0 {
		t.Fatal("pulse should be cancelled after completion")
	}

	// Further ticks do nothing.
	h.clock.Advance(time.Minute)
	h.engine.Tick()
	if len(h.Completions()) != 1 {
		t.Fatal("completion fired twice")
	}
}

func TestTickPersistsOnlyTransitions(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	saves := h.store.saves

	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Second)
		h.pulse.Fire()
	}
	if h.store.saves != saves {
		t.Fatalf("ticks persisted state %d times", h.store.saves-saves)
	}
}

func TestStatusIsLive(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	h.clock.Advance(15 * time.Second)

	if got := h.engine.Status().SecondsLeft; got != 45 {
		t.Fatalf("expected live 45, got %d", got)
	}
	// Status does not advance the cached state.
	if got := h.engine.State().SecondsLeft; got != 60 {
		t.Fatalf("expected cached 60, got %d", got)
	}
}

func TestClockGoingBackwardsClamps(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	h.clock.Advance(-time.Hour)
	h.engine.Tick()
	if got := h.engine.State().SecondsLeft; got != 60 {
		t.Fatalf("expected clamp to total, got %d", got)
	}
}

// ============================================================
// Pause / Resume
// ============================================================

func TestPauseResumePreservesElapsed(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)

	h.clock.Advance(10 * time.Second)
	if err := h.engine.Pause(); err != nil {
		t.Fatal(err)
	}
	paused := h.engine.State()
	if paused.IsRunning || paused.SecondsLeft != 50 || paused.StartTimestamp != nil {
		t.Fatalf("unexpected paused state %+v", paused)
	}
	if h.pulse.Active() != 0 {
		t.Fatal("pause should cancel the pulse")
	}

	h.clock.Advance(3 * time.Hour)
	if got := h.engine.Status().SecondsLeft; got != 50 {
		t.Fatalf("paused timer moved: %d", got)
	}

	if err := h.engine.Resume(); err != nil {
		t.Fatal(err)
	}
	st := h.engine.State()
	if !st.IsRunning || st.SecondsLeft != 50 {
		t.Fatalf("unexpected resumed state %+v", st)
	}
	if got := h.engine.Status().SecondsLeft; got != 50 {
		t.Fatalf("expected 50 at the instant of resume, got %d", got)
	}
	want := h.clock.Now().Add(-10 * time.Second)
	if !st.StartTimestamp.Equal(want) {
		t.Fatalf("start timestamp %v, want %v", st.StartTimestamp, want)
	}

	h.clock.Advance(50 * time.Second)
	h.pulse.Fire()
	if len(h.Completions()) != 1 {
		t.Fatal("resumed run should complete after the remaining time")
	}
}

func TestPauseWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.Pause(); err != nil {
		t.Fatal(err)
	}
	if h.store.saves != 0 {
		t.Fatal("idle pause should not persist")
	}
}

func TestPauseAfterTimeIsUpCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	h.clock.Advance(2 * time.Minute)

	h.engine.Pause()
	if len(h.Completions()) != 1 {
		t.Fatal("expected completion instead of a pause at zero")
	}
	if err := h.engine.Resume(); !errors.Is(err, ErrNothingToResume) {
		t.Fatalf("expected ErrNothingToResume, got %v", err)
	}
}

func TestResumeWithNothingToResume(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.Resume(); !errors.Is(err, ErrNothingToResume) {
		t.Fatalf("expected ErrNothingToResume, got %v", err)
	}
}

func TestResumeWhileRunningIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	start := *h.engine.State().StartTimestamp
	h.clock.Advance(5 * time.Second)
	h.engine.Resume()
	if !h.engine.State().StartTimestamp.Equal(start) {
		t.Fatal("resume of a running timer moved its start")
	}
}

func TestResumeAfterSuspensionCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	h.clock.Advance(2 * time.Minute)

	if err := h.engine.Resume(); err != nil {
		t.Fatal(err)
	}
	if !h.engine.State().Completed() {
		t.Fatalf("expected completed state, got %+v", h.engine.State())
	}
	if done := h.Completions(); len(done) != 1 || done[0].Mode != model.ModeFocus {
		t.Fatalf("expected one focus completion, got %v", done)
	}
	if !h.store.Saved().Completed() {
		t.Fatal("completion was not persisted")
	}
}

// ============================================================
// Reset / SwitchMode
// ============================================================

func TestResetRestartsWithoutCompletion(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	h.clock.Advance(20 * time.Second)

	if err := h.engine.Reset(oneMinute, model.ModeFocus); err != nil {
		t.Fatal(err)
	}
	if got := h.engine.State().SecondsLeft; got != 60 {
		t.Fatalf("expected full duration, got %d", got)
	}
	if h.pulse.Active() != 1 {
		t.Fatalf("expected exactly one active pulse, got %d", h.pulse.Active())
	}
	if len(h.Completions()) != 0 {
		t.Fatal("reset should not fire completion")
	}
}

func TestSwitchMode(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	if err := h.engine.SwitchMode(oneMinute, model.ModeBreak); err != nil {
		t.Fatal(err)
	}
	st := h.engine.State()
	if st.Mode != model.ModeBreak || st.TotalDurationSeconds != 30 || !st.IsRunning {
		t.Fatalf("unexpected state after switch %+v", st)
	}
}

// ============================================================
// Cancellation
// ============================================================

func TestCancelledPulseDoesNotFire(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	h.clock.Advance(10 * time.Second)
	h.engine.Pause()

	h.clock.Advance(5 * time.Minute)
	h.pulse.FireStale()

	st := h.engine.State()
	if st.IsRunning || st.SecondsLeft != 50 {
		t.Fatalf("stale pulse changed state: %+v", st)
	}
	if len(h.Completions()) != 0 {
		t.Fatal("stale pulse fired completion")
	}
}

func TestPulseFromReplacedRunIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	h.engine.Reset(Durations{Focus: time.Hour, Break: time.Minute}, model.ModeFocus)

	h.clock.Advance(2 * time.Minute)
	h.pulse.FireStale()
	if len(h.Completions()) != 0 {
		t.Fatal("pulse of the replaced run completed the new one")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	h := newHarness(t, nil)
	calls := 0
	h.engine.Subscribe(func(Status) { calls++ })
	h.engine.Start(oneMinute, model.ModeFocus)
	calls = 0

	h.engine.Close()
	if h.pulse.Active() != 0 {
		t.Fatal("close should cancel the pulse")
	}
	h.clock.Advance(2 * time.Minute)
	h.pulse.FireStale()
	h.engine.Tick()

	if calls != 0 || len(h.Completions()) != 0 {
		t.Fatal("callbacks fired after close")
	}
	if err := h.engine.Start(oneMinute, model.ModeFocus); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Second close is harmless.
	h.engine.Close()
}

// ============================================================
// Subscriptions
// ============================================================

func TestSubscribeReceivesProjection(t *testing.T) {
	h := newHarness(t, nil)
	var got []Status
	unsub := h.engine.Subscribe(func(s Status) { got = append(got, s) })

	h.engine.Start(oneMinute, model.ModeFocus)
	h.clock.Advance(time.Second)
	h.pulse.Fire()
	h.pulse.Fire() // same second, no change

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[1].SecondsLeft != 59 || got[1].TotalDurationSeconds != 60 || !got[1].IsRunning {
		t.Fatalf("unexpected projection %+v", got[1])
	}

	unsub()
	h.engine.Pause()
	if len(got) != 2 {
		t.Fatal("notified after unsubscribe")
	}
}

func TestCompletionHandlerCanStartNextRun(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.OnComplete(func(c Completion) {
		if c.Mode == model.ModeFocus {
			if err := h.engine.Start(oneMinute, model.ModeBreak); err != nil {
				t.Errorf("chain: %v", err)
			}
		}
	})

	h.engine.Start(oneMinute, model.ModeFocus)
	h.clock.Advance(time.Minute)
	h.pulse.Fire()

	st := h.engine.State()
	if st.Mode != model.ModeBreak || !st.IsRunning {
		t.Fatalf("expected chained break run, got %+v", st)
	}
}

func TestSaveFailureKeepsStateAndReturnsError(t *testing.T) {
	h := newHarness(t, nil)
	h.store.failSave = errors.New("disk full")

	err := h.engine.Start(oneMinute, model.ModeFocus)
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if !h.engine.State().IsRunning {
		t.Fatal("in-memory state should be updated optimistically")
	}
}

// ============================================================
// Restore
// ============================================================

func TestRestoreRecentRunningState(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now().Add(-5 * time.Minute)
	h := newHarness(t, &model.TimerState{
		Mode:                 model.ModeFocus,
		IsRunning:            true,
		StartTimestamp:       &start,
		TotalDurationSeconds: 25 * 60,
		SecondsLeft:          25 * 60,
		UpdatedAt:            start,
	})

	if err := h.engine.Restore(); err != nil {
		t.Fatal(err)
	}
	st := h.engine.State()
	if !st.IsRunning || st.SecondsLeft != 20*60 {
		t.Fatalf("expected running with 20m left, got %+v", st)
	}
	if h.pulse.Active() != 1 {
		t.Fatal("restored run should keep ticking")
	}
}

func TestRestoreRunThatEndedWhileAway(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now().Add(-30 * time.Minute)
	h := newHarness(t, &model.TimerState{
		Mode:                 model.ModeFocus,
		IsRunning:            true,
		StartTimestamp:       &start,
		TotalDurationSeconds: 25 * 60,
		SecondsLeft:          25 * 60,
		UpdatedAt:            start,
	})

	h.engine.Restore()
	if !h.engine.State().Completed() {
		t.Fatalf("expected completed state, got %+v", h.engine.State())
	}
	if len(h.Completions()) != 1 {
		t.Fatal("completion should fire on restore")
	}
	if h.pulse.Active() != 0 {
		t.Fatal("no pulse for a completed run")
	}
}

func TestRestoreDiscardsStaleState(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now().Add(-2 * time.Hour)
	h := newHarness(t, &model.TimerState{
		Mode:                 model.ModeFocus,
		IsRunning:            true,
		StartTimestamp:       &start,
		TotalDurationSeconds: 25 * 60,
		SecondsLeft:          25 * 60,
		UpdatedAt:            start,
	})

	h.engine.Restore()
	if !h.engine.State().Idle() {
		t.Fatalf("expected idle, got %+v", h.engine.State())
	}
	if !h.store.Saved().Idle() {
		t.Fatal("stale state should be replaced in storage")
	}
	if len(h.Completions()) != 0 {
		t.Fatal("stale state should not complete")
	}
}

func TestRestoreRecentPausedState(t *testing.T) {
	clock := newFakeClock()
	h := newHarness(t, &model.TimerState{
		Mode:                 model.ModeBreak,
		TotalDurationSeconds: 300,
		SecondsLeft:          120,
		UpdatedAt:            clock.Now().Add(-10 * time.Minute),
	})

	h.engine.Restore()
	st := h.engine.State()
	if st.IsRunning || st.SecondsLeft != 120 || st.Mode != model.ModeBreak {
		t.Fatalf("expected paused break with 120s, got %+v", st)
	}
	if err := h.engine.Resume(); err != nil {
		t.Fatal(err)
	}
}

func TestRestoreIdle(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.Restore(); err != nil {
		t.Fatal(err)
	}
	if !h.engine.State().Idle() {
		t.Fatal("expected idle")
	}
}

func TestPeekDoesNotWrite(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now().Add(-30 * time.Minute)
	running := model.TimerState{
		Mode:                 model.ModeFocus,
		IsRunning:            true,
		StartTimestamp:       &start,
		TotalDurationSeconds: 25 * 60,
		SecondsLeft:          25 * 60,
		UpdatedAt:            start,
	}
	h := newHarness(t, &running)

	if err := h.engine.Peek(); err != nil {
		t.Fatal(err)
	}
	if st := h.engine.Status(); !st.IsRunning || st.SecondsLeft != 0 {
		t.Fatalf("expected expired running status, got %+v", st)
	}
	if h.store.saves != 0 {
		t.Fatalf("peek saved state %d times", h.store.saves)
	}
	if len(h.Completions()) != 0 {
		t.Fatal("peek should not complete the run")
	}
	if h.pulse.Active() != 0 {
		t.Fatal("peek should not start a pulse")
	}
}

func TestPeekTreatsStaleStateAsIdle(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now().Add(-2 * time.Hour)
	h := newHarness(t, &model.TimerState{
		Mode:                 model.ModeFocus,
		IsRunning:            true,
		StartTimestamp:       &start,
		TotalDurationSeconds: 25 * 60,
		SecondsLeft:          25 * 60,
		UpdatedAt:            start,
	})

	h.engine.Peek()
	if !h.engine.State().Idle() {
		t.Fatalf("expected idle, got %+v", h.engine.State())
	}
	if !h.store.Saved().IsRunning {
		t.Fatal("stale state should be left in storage")
	}
}

// ============================================================
// Cross-view adoption
// ============================================================

func TestAdoptsForeignRunningState(t *testing.T) {
	h := newHarness(t, nil)
	start := h.clock.Now().Add(-10 * time.Second)
	h.store.Foreign(model.TimerState{
		Mode:                 model.ModeFocus,
		IsRunning:            true,
		StartTimestamp:       &start,
		TotalDurationSeconds: 60,
		SecondsLeft:          60,
		UpdatedAt:            start,
	})

	if !h.engine.State().IsRunning {
		t.Fatal("foreign running state not adopted")
	}
	if h.pulse.Active() != 1 {
		t.Fatal("adopted run should tick")
	}
	if got := h.engine.Status().SecondsLeft; got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestAdoptsForeignPause(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Start(oneMinute, model.ModeFocus)
	h.store.Foreign(model.TimerState{
		Mode:                 model.ModeFocus,
		TotalDurationSeconds: 60,
		SecondsLeft:          40,
		UpdatedAt:            h.clock.Now(),
	})
	st := h.engine.State()
	if st.IsRunning || st.SecondsLeft != 40 {
		t.Fatalf("expected adopted pause, got %+v", st)
	}
	if h.pulse.Active() != 0 {
		t.Fatal("adopted pause should stop the pulse")
	}
}

// ============================================================
// With the persistent store
// ============================================================

func TestEngineStateSurvivesRestart(t *testing.T) {
	s, err := store.NewMemory(store.WithPollInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	clock := newFakeClock()
	doc := store.Bind(s, store.TimerStateKey)

	first := New(doc, WithClock(clock.Now), WithPulse(&manualPulse{}))
	first.Start(oneMinute, model.ModeFocus)
	clock.Advance(20 * time.Second)
	first.Close()

	second := New(doc, WithClock(clock.Now), WithPulse(&manualPulse{}))
	t.Cleanup(second.Close)
	if err := second.Restore(); err != nil {
		t.Fatal(err)
	}
	st := second.State()
	if !st.IsRunning || st.SecondsLeft != 40 {
		t.Fatalf("expected running with 40s left, got %+v", st)
	}
}
