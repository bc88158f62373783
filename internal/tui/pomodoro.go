package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/timer"
	"github.com/sadopc/pulse/internal/tracker"
)

type pomodoroModel struct {
	tr     *tracker.Tracker
	width  int
	height int

	status   timer.Status
	settings model.PomodoroSettings
	cycle    model.TimerCycle
}

func newPomodoroModel(tr *tracker.Tracker) pomodoroModel {
	return pomodoroModel{
		tr:       tr,
		status:   tr.Timer().Status(),
		settings: model.DefaultPomodoroSettings(),
	}
}

func (p *pomodoroModel) setSize(w, h int) {
	p.width = w
	p.height = h
}

func (p *pomodoroModel) setSnapshot(s tracker.Snapshot) {
	p.settings = s.Settings
	p.cycle = s.Cycle
	p.refresh()
}

// refresh re-reads the live countdown from the engine.
func (p *pomodoroModel) refresh() {
	p.status = p.tr.Timer().Status()
}

func (p pomodoroModel) idle() bool {
	return !p.status.IsRunning && p.status.TotalDurationSeconds == 0
}

func (p pomodoroModel) finished() bool {
	return !p.status.IsRunning && p.status.TotalDurationSeconds > 0 && p.status.SecondsLeft == 0
}

func (p pomodoroModel) paused() bool {
	return !p.status.IsRunning && p.status.SecondsLeft > 0
}

func (p pomodoroModel) mode() model.Mode {
	if p.status.Mode == "" {
		return model.ModeFocus
	}
	return p.status.Mode
}

func (p pomodoroModel) update(msg tea.Msg) (pomodoroModel, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	tr := p.tr
	switch {
	case key.Matches(km, keys.Start):
		return p, timerCmd(func() error { return tr.StartTimer(model.ModeFocus) }, "Focus started")
	case key.Matches(km, keys.Break):
		return p, timerCmd(func() error { return tr.StartTimer(model.ModeBreak) }, "Break started")
	case key.Matches(km, keys.Pause):
		if p.status.IsRunning {
			return p, timerCmd(tr.PauseTimer, "Paused")
		}
		return p, timerCmd(tr.ResumeTimer, "Resumed")
	case key.Matches(km, keys.Reset):
		mode := p.mode()
		return p, timerCmd(func() error { return tr.ResetTimer(mode) }, "Timer reset")
	case key.Matches(km, keys.Switch):
		next := model.ModeBreak
		if p.mode() == model.ModeBreak {
			next = model.ModeFocus
		}
		return p, timerCmd(func() error { return tr.SwitchTimerMode(next) }, "Switched to "+string(next))
	}
	return p, nil
}

func timerCmd(fn func() error, success string) tea.Cmd {
	return func() tea.Msg {
		err := fn()
		switch {
		case errors.Is(err, timer.ErrNothingToResume):
			return statusMsg{text: "Nothing to resume. Press s to start."}
		case err != nil:
			return errorStatus(err)
		}
		return statusMsg{text: success}
	}
}

func (p pomodoroModel) view() string {
	w := p.width - 4
	title := titleStyle.Render("Pomodoro Timer")

	style := accentStyle
	label := "FOCUS"
	if p.mode() == model.ModeBreak {
		style = successStyle
		label = "BREAK"
	}

	var timeDisplay, phaseLabel string
	switch {
	case p.idle():
		timeDisplay = timerStyle.Width(w - 6).Render(formatCountdown(p.settings.FocusMinutes * 60))
		phaseLabel = mutedStyle.Render("Ready to start")
	case p.finished():
		timeDisplay = successStyle.Bold(true).Width(w - 6).Align(lipgloss.Center).Render("Done!")
		phaseLabel = style.Bold(true).Render(label + " COMPLETE")
	case p.paused():
		timeDisplay = timerPausedStyle.Width(w - 6).Render(formatCountdown(p.status.SecondsLeft))
		phaseLabel = warningStyle.Render("⏸  " + label + " PAUSED")
	default:
		timeDisplay = style.Bold(true).Width(w - 6).Align(lipgloss.Center).Render(formatCountdown(p.status.SecondsLeft))
		phaseLabel = style.Bold(true).Render("●  " + label)
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		title,
		"",
		timeDisplay,
		phaseLabel,
		"",
		p.renderProgress(),
	)

	var controls string
	switch {
	case p.idle(), p.finished():
		controls = mutedStyle.Render("s: focus  b: break")
	case p.paused():
		controls = mutedStyle.Render("space: resume  r: reset  m: switch mode")
	default:
		controls = mutedStyle.Render("space: pause  r: reset  m: switch mode")
	}

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Center, content, "", controls),
	)
}

// renderProgress shows completed focus sessions until the next long break.
func (p pomodoroModel) renderProgress() string {
	target := p.settings.LongBreakInterval
	if target <= 0 {
		return ""
	}
	var parts []string
	for i := 0; i < target; i++ {
		switch {
		case i < p.cycle.CompletedFocus:
			parts = append(parts, successStyle.Render("●"))
		case i == p.cycle.CompletedFocus && p.status.IsRunning && p.mode() == model.ModeFocus:
			parts = append(parts, accentStyle.Render("◐"))
		default:
			parts = append(parts, mutedStyle.Render("○"))
		}
	}
	counter := mutedStyle.Render(fmt.Sprintf("  %d/%d", p.cycle.CompletedFocus, target))
	return strings.Join(parts, " ") + counter
}
