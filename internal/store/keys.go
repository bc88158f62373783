package store

import "github.com/sadopc/pulse/internal/model"

// Top-level documents. Each is loaded and written independently.
var (
	TasksKey      = NewKey("tasks", func() []model.Task { return []model.Task{} })
	ProjectsKey   = NewKey("projects", func() []model.Project { return []model.Project{} })
	DailyLogsKey  = NewKey("dailyLogs", func() []model.DailyLogEntry { return []model.DailyLogEntry{} })
	MilestonesKey = NewKey("milestones", func() []model.Milestone { return []model.Milestone{} })

	PomodoroSettingsKey = NewKey("pomodoroSettings", model.DefaultPomodoroSettings)
	TimerStateKey       = NewKey("timerState", model.IdleTimerState)
	TimerCycleKey       = NewKey("timerCycle", func() model.TimerCycle { return model.TimerCycle{} })
)

// Keys lists every document name.
var Keys = []string{
	TasksKey.Name,
	ProjectsKey.Name,
	DailyLogsKey.Name,
	MilestonesKey.Name,
	PomodoroSettingsKey.Name,
	TimerStateKey.Name,
	TimerCycleKey.Name,
}
