package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/pulse/internal/export"
	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/tracker"
)

var exportFormats = []string{"CSV", "JSON", "PDF"}

// App is the root Bubble Tea model.
type App struct {
	tr        *tracker.Tracker
	feed      *feed
	snap      tracker.Snapshot
	exportDir string
	width     int
	height    int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	tasks    tasksModel
	projects projectsModel
	reports  reportsModel
	pomodoro pomodoroModel
	settings settingsModel

	help   help.Model
	status string
}

// NewApp builds the UI over tr. Exports are written to exportDir, or the
// home directory when it is empty. Call Close when the program exits.
func NewApp(tr *tracker.Tracker, exportDir string) App {
	h := help.New()
	h.ShowAll = false

	if exportDir == "" {
		exportDir, _ = os.UserHomeDir()
	}

	a := App{
		tr:         tr,
		feed:       newFeed(tr),
		exportDir:  exportDir,
		activeView: viewTasks,
		tasks:      newTasksModel(tr),
		projects:   newProjectsModel(tr),
		reports:    newReportsModel(tr),
		pomodoro:   newPomodoroModel(tr),
		settings:   newSettingsModel(tr),
		help:       h,
	}
	a.applySnapshot(tr.Snapshot())
	return a
}

// Close detaches the app from the tracker.
func (a App) Close() {
	a.feed.close()
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.feed.waitSnapshot(),
		a.feed.waitCompletion(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) applySnapshot(s tracker.Snapshot) {
	a.snap = s
	a.tasks.setSnapshot(s)
	a.projects.setSnapshot(s)
	a.reports.setSnapshot(s)
	a.pomodoro.setSnapshot(s)
	a.settings.setSnapshot(s)
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.tasks.setSize(a.width, contentHeight)
		a.projects.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.pomodoro.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Archive):
			return a, a.archiveToday()
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewTasks
			return a, nil
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewProjects
			return a, nil
		case key.Matches(msg, keys.Tab3):
			a.activeView = viewReports
			return a, nil
		case key.Matches(msg, keys.Tab4):
			a.activeView = viewPomodoro
			return a, nil
		case key.Matches(msg, keys.Tab5):
			a.activeView = viewSettings
			return a, nil
		case key.Matches(msg, keys.Tab):
			a.activeView = (a.activeView + 1) % viewState(len(viewNames))
			return a, nil
		}

	case tickMsg:
		a.pomodoro.refresh()
		return a, tickCmd()

	case snapshotMsg:
		a.applySnapshot(tracker.Snapshot(msg))
		return a, a.feed.waitSnapshot()

	case completionMsg:
		a.pomodoro.refresh()
		a.status = completionText(msg.Mode)
		return a, a.feed.waitCompletion()

	case statusMsg:
		a.status = msg.text
		if msg.isError {
			a.status = errorStyle.Render(msg.text)
		}
		a.pomodoro.refresh()
		return a, nil

	case exportDoneMsg:
		a.status = "Exported to " + msg.path
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func completionText(mode model.Mode) string {
	if mode == model.ModeBreak {
		return "Break over. Back to focus! \a"
	}
	return "Focus session complete! \a"
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewTasks:
		a.tasks, cmd = a.tasks.update(msg)
	case viewProjects:
		a.projects, cmd = a.projects.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewPomodoro:
		a.pomodoro, cmd = a.pomodoro.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewTasks:
		return a.tasks.formActive
	case viewProjects:
		return a.projects.formActive
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) archiveToday() tea.Cmd {
	tr := a.tr
	return func() tea.Msg {
		entry, err := tr.ArchiveToday()
		if err != nil {
			return errorStatus(err)
		}
		return statusMsg{text: fmt.Sprintf("Archived %s: %d/%d done, score %d",
			entry.Date, entry.CompletedTasks, entry.TotalTasks, entry.ProductivityScore)}
	}
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewTasks:
		content = a.tasks.view()
	case viewProjects:
		content = a.projects.view()
	case viewReports:
		content = a.reports.view()
	case viewPomodoro:
		content = a.pomodoro.view()
	case viewSettings:
		content = a.settings.view()
	}

	contentHeight := max(a.height-lipgloss.Height(header)-lipgloss.Height(footer), 1)

	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("pulse")
	gap := max(a.width-lipgloss.Width(title)-lipgloss.Width(tabRow)-4, 1)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		status = mutedStyle.Render(" " + a.status)
	}

	// Timer indicator in footer
	timerInfo := ""
	p := a.pomodoro
	switch {
	case p.status.IsRunning:
		timerInfo = successStyle.Render(fmt.Sprintf(" ● %s %s", p.mode(), formatCountdown(p.status.SecondsLeft)))
	case p.paused():
		timerInfo = warningStyle.Render(fmt.Sprintf(" ⏸ %s %s", p.mode(), formatCountdown(p.status.SecondsLeft)))
	}

	left := footerStyle.Render(helpView)
	right := timerInfo + status

	gap := max(a.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	rows := []string{titleStyle.Render("Export Daily Logs"), ""}
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	return activePanelStyle.Width(a.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(exportFormats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

func (a App) doExport(format int) tea.Cmd {
	logs := a.snap.DailyLogs
	dir := a.exportDir
	today := a.tr.Today()
	return func() tea.Msg {
		var path string
		var err error
		switch format {
		case 0:
			path = filepath.Join(dir, fmt.Sprintf("pulse-export-%s.csv", today))
			err = export.ToCSV(logs, path)
		case 1:
			path = filepath.Join(dir, fmt.Sprintf("pulse-export-%s.json", today))
			err = export.ToJSON(logs, path)
		default:
			path = filepath.Join(dir, fmt.Sprintf("pulse-report-%s.pdf", today))
			err = export.ToPDF(logs, "", "", path)
		}
		if err != nil {
			return statusMsg{text: fmt.Sprintf("%s export error: %v", exportFormats[min(format, 2)], err), isError: true}
		}
		return exportDoneMsg{path: path}
	}
}
