package model

import "time"

// Priority is a task's priority class, A (highest) through D.
type Priority string

const (
	PriorityA Priority = "A"
	PriorityB Priority = "B"
	PriorityC Priority = "C"
	PriorityD Priority = "D"
)

// DefaultPriority is applied when a task is created without one.
const DefaultPriority = PriorityC

// Priorities lists every priority class in order.
var Priorities = []Priority{PriorityA, PriorityB, PriorityC, PriorityD}

func (p Priority) Valid() bool {
	switch p {
	case PriorityA, PriorityB, PriorityC, PriorityD:
		return true
	}
	return false
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	ProjectID   string     `json:"projectId,omitempty"`
	Priority    Priority   `json:"priority"`
	Done        bool       `json:"done"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// SetDone flips the done flag and keeps CompletedAt in step with it.
func (t *Task) SetDone(done bool, now time.Time) {
	t.Done = done
	if done {
		at := now
		t.CompletedAt = &at
		return
	}
	t.CompletedAt = nil
}

type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (p Project) Completed() bool { return p.CompletedAt != nil }

// Milestone records the completion of a project. It is written once and never changed.
type Milestone struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	CompletedAt time.Time `json:"completedAt"`
}

// PriorityBreakdown counts tasks per priority class. All four keys are always present.
type PriorityBreakdown map[Priority]int

func NewPriorityBreakdown() PriorityBreakdown {
	b := make(PriorityBreakdown, len(Priorities))
	for _, p := range Priorities {
		b[p] = 0
	}
	return b
}

type ProjectTally struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// DailyLogEntry is the archived summary of one calendar day.
type DailyLogEntry struct {
	Date              string                  `json:"date"`
	TotalTasks        int                     `json:"totalTasks"`
	CompletedTasks    int                     `json:"completedTasks"`
	CompletionRate    int                     `json:"completionRate"`
	ProductivityScore int                     `json:"productivityScore"`
	PriorityBreakdown PriorityBreakdown       `json:"priorityBreakdown"`
	ProjectBreakdown  map[string]ProjectTally `json:"projectBreakdown"`
}

// Mode selects which duration a timer run uses.
type Mode string

const (
	ModeFocus Mode = "focus"
	ModeBreak Mode = "break"
)

func (m Mode) Valid() bool {
	return m == ModeFocus || m == ModeBreak
}

// TimerState is the persisted state of the interval timer.
type TimerState struct {
	Mode                 Mode       `json:"mode"`
	IsRunning            bool       `json:"isRunning"`
	StartTimestamp       *time.Time `json:"startTimestamp,omitempty"`
	TotalDurationSeconds int        `json:"totalDurationSeconds"`
	SecondsLeft          int        `json:"secondsLeft"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// IdleTimerState is the state of a timer that has never been started.
func IdleTimerState() TimerState {
	return TimerState{Mode: ModeFocus}
}

// Idle reports whether no run is active or paused.
func (s TimerState) Idle() bool {
	return !s.IsRunning && s.TotalDurationSeconds == 0
}

// Completed reports whether the last run counted down to zero.
func (s TimerState) Completed() bool {
	return !s.IsRunning && s.TotalDurationSeconds > 0 && s.SecondsLeft == 0
}

// PomodoroSettings holds interval durations in minutes.
type PomodoroSettings struct {
	FocusMinutes      int `json:"focusMinutes"`
	ShortBreakMinutes int `json:"shortBreakMinutes"`
	LongBreakMinutes  int `json:"longBreakMinutes"`
	LongBreakInterval int `json:"longBreakInterval"`
}

func DefaultPomodoroSettings() PomodoroSettings {
	return PomodoroSettings{
		FocusMinutes:      25,
		ShortBreakMinutes: 5,
		LongBreakMinutes:  15,
		LongBreakInterval: 4,
	}
}

// TimerCycle counts completed focus sessions since the last long break.
// LongBreakPending is set when a focus run earned a long break that has not
// been started yet.
type TimerCycle struct {
	CompletedFocus   int  `json:"completedFocus"`
	LongBreakPending bool `json:"longBreakPending,omitempty"`
}
