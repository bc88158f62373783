package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sadopc/pulse/internal/archive"
	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/store"
	"github.com/sadopc/pulse/internal/timer"
)

// DeletePolicy decides what happens to a project's tasks when it is removed.
type DeletePolicy string

const (
	// DeleteCascade removes the project's tasks along with it.
	DeleteCascade DeletePolicy = "cascade"
	// DeleteOrphan keeps the tasks; they report under archive.FallbackProjectLabel.
	DeleteOrphan DeletePolicy = "orphan"
)

func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(s) {
	case DeleteCascade, DeleteOrphan:
		return DeletePolicy(s), nil
	case "":
		return DeleteCascade, nil
	}
	return "", fmt.Errorf("unknown delete policy %q (want cascade or orphan)", s)
}

// DefaultArchiveSchedule archives the day shortly before midnight.
const DefaultArchiveSchedule = "55 23 * * *"

type Config struct {
	Location     *time.Location
	DeletePolicy DeletePolicy
	// AutoChain starts the next run when one completes.
	AutoChain bool
	// ArchiveSchedule is a cron spec for ArchiveToday. Empty disables it.
	ArchiveSchedule string
	// CatchUp archives tasks left over from previous days on Start.
	CatchUp    bool
	StaleAfter time.Duration

	Clock  func() time.Time
	Pulse  timer.Pulse
	Logger *zap.Logger
	NewID  func() string
}

func DefaultConfig() Config {
	return Config{
		Location:        time.Local,
		DeletePolicy:    DeleteCascade,
		ArchiveSchedule: DefaultArchiveSchedule,
		CatchUp:         true,
		StaleAfter:      timer.DefaultStaleAfter,
	}
}

// Snapshot is a read-only view of all state plus derived lookups.
type Snapshot struct {
	Tasks      []model.Task
	Projects   []model.Project
	DailyLogs  []model.DailyLogEntry
	Milestones []model.Milestone
	Timer      model.TimerState
	Settings   model.PomodoroSettings
	Cycle      model.TimerCycle

	ProjectIDToProject   map[string]model.Project
	ProjectIDToTaskCount map[string]int
}

// Tracker is the command and read surface over the store and timer engine.
type Tracker struct {
	store *store.Store
	timer *timer.Engine
	cfg   Config
	log   *zap.Logger
	cron  *cron.Cron

	mu          sync.Mutex
	subs        map[int]func(Snapshot)
	completions map[int]func(timer.Completion)
	nextID      int
	unsubs      []func()
	closed      bool
}

// New wires a tracker to s. Call Start to restore the timer and begin
// scheduled archiving.
func New(s *store.Store, cfg Config) (*Tracker, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DeletePolicy == "" {
		cfg.DeletePolicy = DeleteCascade
	}
	if _, err := ParseDeletePolicy(string(cfg.DeletePolicy)); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = timer.DefaultStaleAfter
	}

	t := &Tracker{
		store:       s,
		cfg:         cfg,
		log:         cfg.Logger.Named("tracker"),
		subs:        make(map[int]func(Snapshot)),
		completions: make(map[int]func(timer.Completion)),
	}

	if cfg.ArchiveSchedule != "" {
		t.cron = cron.New(cron.WithLocation(cfg.Location))
		_, err := t.cron.AddFunc(cfg.ArchiveSchedule, t.scheduledArchive)
		if err != nil {
			return nil, fmt.Errorf("archive schedule %q: %w", cfg.ArchiveSchedule, err)
		}
	}

	opts := []timer.Option{
		timer.WithClock(cfg.Clock),
		timer.WithLogger(cfg.Logger),
		timer.WithStaleAfter(cfg.StaleAfter),
	}
	if cfg.Pulse != nil {
		opts = append(opts, timer.WithPulse(cfg.Pulse))
	}
	t.timer = timer.New(store.Bind(s, store.TimerStateKey), opts...)
	t.timer.OnComplete(t.onTimerComplete)

	for _, key := range store.Keys {
		t.unsubs = append(t.unsubs, s.SubscribeRaw(key, func(store.Event) { t.publish() }))
	}
	return t, nil
}

// Start restores persisted timer state, archives days left behind while the
// program was not running, and starts the archive schedule.
func (t *Tracker) Start() error {
	if err := t.timer.Restore(); err != nil {
		t.log.Warn("restore timer", zap.Error(err))
	}
	if t.cfg.CatchUp {
		if err := t.catchUp(); err != nil {
			return err
		}
	}
	if t.cron != nil {
		t.cron.Start()
		t.log.Info("auto-archive scheduled", zap.String("schedule", t.cfg.ArchiveSchedule))
	}
	return nil
}

// Peek loads persisted timer state for read-only callers in place of Start.
// It writes nothing: no restore, no catch-up and no schedule.
func (t *Tracker) Peek() error {
	return t.timer.Peek()
}

// Close stops the schedule and the timer. The store is left open.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	unsubs := t.unsubs
	t.unsubs = nil
	t.subs = make(map[int]func(Snapshot))
	t.completions = make(map[int]func(timer.Completion))
	t.mu.Unlock()

	if t.cron != nil {
		<-t.cron.Stop().Done()
	}
	t.timer.Close()
	for _, fn := range unsubs {
		fn()
	}
}

// Timer exposes the engine for live status reads.
func (t *Tracker) Timer() *timer.Engine { return t.timer }

// Today returns the current day key in the configured location.
func (t *Tracker) Today() string {
	return archive.DayKey(t.now(), t.cfg.Location)
}

func (t *Tracker) now() time.Time { return t.cfg.Clock() }

// Snapshot reads the current state of every document.
func (t *Tracker) Snapshot() Snapshot {
	snap := Snapshot{
		Tasks:      load(t, store.TasksKey),
		Projects:   load(t, store.ProjectsKey),
		DailyLogs:  load(t, store.DailyLogsKey),
		Milestones: load(t, store.MilestonesKey),
		Settings:   load(t, store.PomodoroSettingsKey),
		Cycle:      load(t, store.TimerCycleKey),
		Timer:      t.timer.State(),
	}

	snap.ProjectIDToProject = make(map[string]model.Project, len(snap.Projects))
	snap.ProjectIDToTaskCount = make(map[string]int, len(snap.Projects))
	for _, p := range snap.Projects {
		snap.ProjectIDToProject[p.ID] = p
		snap.ProjectIDToTaskCount[p.ID] = 0
	}
	for _, task := range snap.Tasks {
		if task.ProjectID != "" {
			snap.ProjectIDToTaskCount[task.ProjectID]++
		}
	}
	return snap
}

func load[T any](t *Tracker, k store.Key[T]) T {
	v, err := store.Load(t.store, k)
	if err != nil {
		t.log.Warn("load", zap.String("key", k.Name), zap.Error(err))
	}
	return v
}

// Subscribe calls fn with a fresh snapshot after every change to any
// document, local or from another view. fn runs on the goroutine that made
// the change and must not issue commands synchronously.
func (t *Tracker) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// OnTimerComplete calls fn whenever a timer run completes.
func (t *Tracker) OnTimerComplete(fn func(timer.Completion)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.completions[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.completions, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) publish() {
	t.mu.Lock()
	if len(t.subs) == 0 {
		t.mu.Unlock()
		return
	}
	subs := make([]func(Snapshot), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	snap := t.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}
