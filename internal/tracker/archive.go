package tracker

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sadopc/pulse/internal/archive"
	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/store"
)

// ArchiveToday archives the current day.
func (t *Tracker) ArchiveToday() (model.DailyLogEntry, error) {
	return t.ArchiveDay(t.Today())
}

// ArchiveDay logs the tasks created on dateKey and removes them from the
// working set. The log and the task list are written in one batch. When the
// day is already logged and no tasks from it remain, the logged entry is
// returned unchanged.
func (t *Tracker) ArchiveDay(dateKey string) (model.DailyLogEntry, error) {
	return t.archiveDay(dateKey, false)
}

// archiveDay with merge set adds the day's remaining tasks to an entry that is
// already logged instead of replacing it.
func (t *Tracker) archiveDay(dateKey string, merge bool) (model.DailyLogEntry, error) {
	if _, err := time.Parse(archive.DayLayout, dateKey); err != nil {
		return model.DailyLogEntry{}, &model.ValidationError{
			Fields: []string{fmt.Sprintf("date %q must be formatted YYYY-MM-DD", dateKey)},
		}
	}

	var entry model.DailyLogEntry
	err := t.store.Update(func(b *store.Batch) error {
		tasks, err := store.Get(b, store.TasksKey)
		if err != nil {
			return err
		}
		projects, err := store.Get(b, store.ProjectsKey)
		if err != nil {
			return err
		}
		logs, err := store.Get(b, store.DailyLogsKey)
		if err != nil {
			return err
		}

		var remaining []model.Task
		entry, remaining = archive.ArchiveDay(tasks, projects, dateKey, t.cfg.Location)
		for _, l := range logs {
			if l.Date != dateKey {
				continue
			}
			if entry.TotalTasks == 0 {
				entry = l
				return nil
			}
			if merge {
				entry = archive.MergeLog(l, entry)
			}
			break
		}
		if err := store.Put(b, store.DailyLogsKey, archive.UpsertLog(logs, entry)); err != nil {
			return err
		}
		return store.Put(b, store.TasksKey, remaining)
	})
	if err != nil {
		return model.DailyLogEntry{}, fmt.Errorf("archive %s: %w", dateKey, err)
	}

	t.log.Info("day archived",
		zap.String("date", dateKey),
		zap.Int("tasks", entry.TotalTasks),
		zap.Int("completed", entry.CompletedTasks),
		zap.Int("score", entry.ProductivityScore),
	)
	return entry, nil
}

// catchUp archives every earlier day that still has tasks in the working set.
// Tasks added after a day was logged are merged into its entry.
func (t *Tracker) catchUp() error {
	tasks := load(t, store.TasksKey)
	for _, day := range archive.PastDays(tasks, t.Today(), t.cfg.Location) {
		if _, err := t.archiveDay(day, true); err != nil {
			return fmt.Errorf("catch up: %w", err)
		}
	}
	return nil
}

// scheduledArchive is the cron job: days left behind while the program kept
// running are caught up before today is archived.
func (t *Tracker) scheduledArchive() {
	if t.cfg.CatchUp {
		if err := t.catchUp(); err != nil {
			t.log.Error("scheduled catch-up failed", zap.Error(err))
		}
	}
	if _, err := t.ArchiveToday(); err != nil {
		t.log.Error("scheduled archive failed", zap.Error(err))
	}
}
