package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/tracker"
)

type settingsModel struct {
	tr     *tracker.Tracker
	width  int
	height int

	settings   model.PomodoroSettings
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	focus     *string
	shortBrk  *string
	longBrk   *string
	longEvery *string
}

func newSettingsModel(tr *tracker.Tracker) settingsModel {
	f, sb, lb, le := "", "", "", ""
	return settingsModel{
		tr:        tr,
		settings:  model.DefaultPomodoroSettings(),
		focus:     &f,
		shortBrk:  &sb,
		longBrk:   &lb,
		longEvery: &le,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

func (s *settingsModel) setSnapshot(snap tracker.Snapshot) {
	s.settings = snap.Settings
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	if km, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(km, keys.Enter), key.Matches(km, keys.Edit):
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.focus = strconv.Itoa(s.settings.FocusMinutes)
	*s.shortBrk = strconv.Itoa(s.settings.ShortBreakMinutes)
	*s.longBrk = strconv.Itoa(s.settings.LongBreakMinutes)
	*s.longEvery = strconv.Itoa(s.settings.LongBreakInterval)

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Focus (min)").Value(s.focus).Validate(positiveInt),
			huh.NewInput().Title("Short break (min)").Value(s.shortBrk).Validate(positiveInt),
			huh.NewInput().Title("Long break (min)").Value(s.longBrk).Validate(positiveInt),
			huh.NewInput().Title("Focus sessions before long break").Value(s.longEvery).Validate(positiveInt),
		).Title("Pomodoro"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		s.form = nil
		return s, s.save(s.formSettings())
	}
	return s, cmd
}

func (s settingsModel) formSettings() model.PomodoroSettings {
	return model.PomodoroSettings{
		FocusMinutes:      atoi(*s.focus),
		ShortBreakMinutes: atoi(*s.shortBrk),
		LongBreakMinutes:  atoi(*s.longBrk),
		LongBreakInterval: atoi(*s.longEvery),
	}
}

func (s settingsModel) save(ps model.PomodoroSettings) tea.Cmd {
	tr := s.tr
	return func() tea.Msg {
		return resultMsg(tr.UpdatePomodoroSettings(ps), "Settings saved")
	}
}

func (s settingsModel) view() string {
	w := s.width - 4
	title := titleStyle.Render("Settings")

	if s.formActive && s.form != nil {
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	rows := []string{title, ""}
	for _, kv := range []struct {
		label string
		value string
	}{
		{"Focus", fmt.Sprintf("%d min", s.settings.FocusMinutes)},
		{"Short break", fmt.Sprintf("%d min", s.settings.ShortBreakMinutes)},
		{"Long break", fmt.Sprintf("%d min", s.settings.LongBreakMinutes)},
		{"Long break every", fmt.Sprintf("%d focus sessions", s.settings.LongBreakInterval)},
	} {
		label := lipgloss.NewStyle().Width(24).Render(kv.label)
		rows = append(rows, fmt.Sprintf("  %s %s", label, highlightStyle.Render(kv.value)))
	}
	rows = append(rows, "", mutedStyle.Render("Press enter to edit settings"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a whole number above zero")
	}
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
