package tracker

import (
	"go.uber.org/zap"

	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/store"
	"github.com/sadopc/pulse/internal/timer"
)

// StartTimer starts a run in mode. A break started after an earned long
// break runs for the long break duration. Any start uses up the pending long
// break.
func (t *Tracker) StartTimer(mode model.Mode) error {
	return t.startRun(mode, t.timer.Start)
}

func (t *Tracker) PauseTimer() error {
	return t.timer.Pause()
}

func (t *Tracker) ResumeTimer() error {
	return t.timer.Resume()
}

func (t *Tracker) ResetTimer(mode model.Mode) error {
	return t.startRun(mode, t.timer.Reset)
}

func (t *Tracker) SwitchTimerMode(mode model.Mode) error {
	return t.startRun(mode, t.timer.SwitchMode)
}

func (t *Tracker) startRun(mode model.Mode, run func(timer.Durations, model.Mode) error) error {
	settings := load(t, store.PomodoroSettingsKey)
	pending := load(t, store.TimerCycleKey).LongBreakPending
	if err := run(timer.DurationsFrom(settings, pending && mode == model.ModeBreak), mode); err != nil {
		return err
	}
	if pending {
		_, err := store.Update(t.store, store.TimerCycleKey, func(c model.TimerCycle) (model.TimerCycle, error) {
			c.LongBreakPending = false
			return c, nil
		})
		if err != nil {
			t.log.Warn("clear long break", zap.Error(err))
		}
	}
	return nil
}

// UpdatePomodoroSettings validates and stores new durations. A zero long
// break interval keeps the current one. The running timer is not changed.
func (t *Tracker) UpdatePomodoroSettings(s model.PomodoroSettings) Result {
	_, err := store.Update(t.store, store.PomodoroSettingsKey, func(cur model.PomodoroSettings) (model.PomodoroSettings, error) {
		if s.LongBreakInterval == 0 {
			s.LongBreakInterval = cur.LongBreakInterval
		}
		if err := model.ValidatePomodoroSettings(s); err != nil {
			return cur, err
		}
		return s, nil
	})
	if err != nil {
		return fail(err)
	}
	return ok()
}

// onTimerComplete advances the focus cycle, chains to the next run when
// configured, and forwards the completion.
func (t *Tracker) onTimerComplete(c timer.Completion) {
	settings := load(t, store.PomodoroSettingsKey)

	var next model.Mode
	var d timer.Durations
	_, err := store.Update(t.store, store.TimerCycleKey, func(cycle model.TimerCycle) (model.TimerCycle, error) {
		var updated model.TimerCycle
		next, d, updated = timer.Next(settings, cycle, c.Mode)
		if t.cfg.AutoChain {
			updated.LongBreakPending = false
		}
		return updated, nil
	})
	if err != nil {
		t.log.Warn("record timer cycle", zap.Error(err))
		next, d, _ = timer.Next(settings, model.TimerCycle{}, c.Mode)
	}

	if t.cfg.AutoChain {
		if err := t.timer.Start(d, next); err != nil {
			t.log.Warn("chain timer", zap.Error(err))
		}
	}

	t.mu.Lock()
	handlers := make([]func(timer.Completion), 0, len(t.completions))
	for _, fn := range t.completions {
		handlers = append(handlers, fn)
	}
	t.mu.Unlock()
	for _, fn := range handlers {
		fn(c)
	}
}
