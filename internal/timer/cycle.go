package timer

import (
	"time"

	"github.com/sadopc/pulse/internal/model"
)

// Durations gives the length of a run in each mode.
type Durations struct {
	Focus time.Duration
	Break time.Duration
}

func (d Durations) For(m model.Mode) time.Duration {
	if m == model.ModeBreak {
		return d.Break
	}
	return d.Focus
}

// DurationsFrom converts settings to run lengths, using the long break when
// longBreak is set.
func DurationsFrom(s model.PomodoroSettings, longBreak bool) Durations {
	brk := s.ShortBreakMinutes
	if longBreak {
		brk = s.LongBreakMinutes
	}
	return Durations{
		Focus: time.Duration(s.FocusMinutes) * time.Minute,
		Break: time.Duration(brk) * time.Minute,
	}
}

// Next decides what runs after a completed run: focus is followed by a short
// break, except every LongBreakInterval-th focus which earns a long break and
// resets the counter; a break is followed by focus. The returned cycle marks
// an earned long break as pending until a break is started.
func Next(s model.PomodoroSettings, c model.TimerCycle, completed model.Mode) (model.Mode, Durations, model.TimerCycle) {
	if completed == model.ModeBreak {
		c.LongBreakPending = false
		return model.ModeFocus, DurationsFrom(s, false), c
	}

	c.CompletedFocus++
	long := s.LongBreakInterval > 0 && c.CompletedFocus >= s.LongBreakInterval
	if long {
		c.CompletedFocus = 0
	}
	c.LongBreakPending = long
	return model.ModeBreak, DurationsFrom(s, long), c
}
