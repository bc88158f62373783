package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/pulse/internal/timer"
	"github.com/sadopc/pulse/internal/tracker"
)

// viewState represents the currently active view.
type viewState int

const (
	viewTasks viewState = iota
	viewProjects
	viewReports
	viewPomodoro
	viewSettings
)

var viewNames = []string{"Tasks", "Projects", "Reports", "Pomodoro", "Settings"}

// --- Messages ---

type snapshotMsg tracker.Snapshot

type completionMsg timer.Completion

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

// --- Helpers ---

// formatCountdown renders seconds as MM:SS.
func formatCountdown(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func formatPercent(n int) string {
	return fmt.Sprintf("%d%%", n)
}

// resultMsg reports a command result on the status line.
func resultMsg(r tracker.Result, success string) tea.Msg {
	if !r.OK {
		return statusMsg{text: r.Err().Error(), isError: true}
	}
	return statusMsg{text: success}
}

func errorStatus(err error) statusMsg {
	return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
}

// StorageError reports a background persistence failure on the status line.
func StorageError(err error) tea.Msg {
	return statusMsg{text: "Storage: " + err.Error(), isError: true}
}
