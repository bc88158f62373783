package archive

import (
	"math"
	"sort"
	"time"

	"github.com/sadopc/pulse/internal/model"
)

// DayLayout is the format of day keys.
const DayLayout = "2006-01-02"

// FallbackProjectLabel names the project of a task whose project no longer exists.
const FallbackProjectLabel = "no project"

// DayKey returns the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}

// ArchiveDay summarizes the tasks created on dateKey and returns the entry
// along with the tasks created on any other day, in their original order.
// It does not modify its inputs.
func ArchiveDay(tasks []model.Task, projects []model.Project, dateKey string, loc *time.Location) (model.DailyLogEntry, []model.Task) {
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}

	entry := model.DailyLogEntry{
		Date:              dateKey,
		PriorityBreakdown: model.NewPriorityBreakdown(),
		ProjectBreakdown:  make(map[string]model.ProjectTally),
	}
	remaining := make([]model.Task, 0, len(tasks))

	for _, t := range tasks {
		if DayKey(t.CreatedAt, loc) != dateKey {
			remaining = append(remaining, t)
			continue
		}

		entry.TotalTasks++
		priority := model.NormalizePriority(t.Priority)
		if priority.Valid() {
			entry.PriorityBreakdown[priority]++
		}
		if t.Done {
			entry.CompletedTasks++
			entry.ProductivityScore += ArchivalWeights.Of(priority)
		}

		if t.ProjectID != "" {
			name, ok := names[t.ProjectID]
			if !ok {
				name = FallbackProjectLabel
			}
			tally := entry.ProjectBreakdown[name]
			tally.Total++
			if t.Done {
				tally.Completed++
			}
			entry.ProjectBreakdown[name] = tally
		}
	}

	entry.CompletionRate = CompletionRate(entry.CompletedTasks, entry.TotalTasks)
	return entry, remaining
}

// CompletionRate is the rounded percentage of completed out of total, or 0
// when total is zero.
func CompletionRate(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// UpsertLog returns logs with entry stored under its date, replacing any
// existing entry for that date. The result is sorted by date.
func UpsertLog(logs []model.DailyLogEntry, entry model.DailyLogEntry) []model.DailyLogEntry {
	out := make([]model.DailyLogEntry, 0, len(logs)+1)
	for _, l := range logs {
		if l.Date != entry.Date {
			out = append(out, l)
		}
	}
	out = append(out, entry)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// MergeLog folds add into base, an entry for the same date logged earlier.
// Counts and score are summed and the completion rate recomputed.
func MergeLog(base, add model.DailyLogEntry) model.DailyLogEntry {
	out := model.DailyLogEntry{
		Date:              base.Date,
		TotalTasks:        base.TotalTasks + add.TotalTasks,
		CompletedTasks:    base.CompletedTasks + add.CompletedTasks,
		ProductivityScore: base.ProductivityScore + add.ProductivityScore,
		PriorityBreakdown: model.NewPriorityBreakdown(),
		ProjectBreakdown:  make(map[string]model.ProjectTally, len(base.ProjectBreakdown)+len(add.ProjectBreakdown)),
	}
	for _, e := range []model.DailyLogEntry{base, add} {
		for p, n := range e.PriorityBreakdown {
			out.PriorityBreakdown[p] += n
		}
		for name, tally := range e.ProjectBreakdown {
			cur := out.ProjectBreakdown[name]
			cur.Total += tally.Total
			cur.Completed += tally.Completed
			out.ProjectBreakdown[name] = cur
		}
	}
	out.CompletionRate = CompletionRate(out.CompletedTasks, out.TotalTasks)
	return out
}

// PastDays returns the distinct days before today on which any of tasks was
// created, oldest first.
func PastDays(tasks []model.Task, today string, loc *time.Location) []string {
	seen := make(map[string]bool)
	var days []string
	for _, t := range tasks {
		d := DayKey(t.CreatedAt, loc)
		if d < today && !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Strings(days)
	return days
}
