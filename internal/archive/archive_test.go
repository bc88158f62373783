package archive

import (
	"reflect"
	"testing"
	"time"

	"github.com/sadopc/pulse/internal/model"
)

var (
	today     = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	yesterday = today.AddDate(0, 0, -1)
	todayKey  = "2025-03-10"
)

func task(id string, p model.Priority, done bool, created time.Time) model.Task {
	t := model.Task{ID: id, Title: "task " + id, Priority: p, CreatedAt: created}
	t.SetDone(done, created.Add(time.Hour))
	return t
}

// ============================================================
// ArchiveDay
// ============================================================

func TestArchiveDayScenario(t *testing.T) {
	tasks := []model.Task{
		task("1", model.PriorityA, true, today),
		task("2", model.PriorityB, false, today),
		task("3", model.PriorityC, true, today),
	}

	entry, remaining := ArchiveDay(tasks, nil, todayKey, time.UTC)

	if entry.Date != todayKey {
		t.Fatalf("date = %q", entry.Date)
	}
	if entry.TotalTasks != 3 || entry.CompletedTasks != 2 {
		t.Fatalf("expected 3/2, got %d/%d", entry.TotalTasks, entry.CompletedTasks)
	}
	if entry.CompletionRate != 67 {
		t.Fatalf("expected rate 67, got %d", entry.CompletionRate)
	}
	if entry.ProductivityScore != 14 {
		t.Fatalf("expected score 14, got %d", entry.ProductivityScore)
	}
	want := model.PriorityBreakdown{"A": 1, "B": 1, "C": 1, "D": 0}
	if !reflect.DeepEqual(entry.PriorityBreakdown, want) {
		t.Fatalf("breakdown = %v, want %v", entry.PriorityBreakdown, want)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no remaining tasks, got %d", len(remaining))
	}
}

func TestArchiveDayScoreIgnoresOrder(t *testing.T) {
	tasks := []model.Task{
		task("1", model.PriorityA, true, today),
		task("2", model.PriorityA, true, today),
		task("3", model.PriorityB, true, today),
		task("4", model.PriorityC, false, today),
	}
	reversed := []model.Task{tasks[3], tasks[2], tasks[1], tasks[0]}

	a, _ := ArchiveDay(tasks, nil, todayKey, time.UTC)
	b, _ := ArchiveDay(reversed, nil, todayKey, time.UTC)
	if a.ProductivityScore != 27 || b.ProductivityScore != 27 {
		t.Fatalf("expected 27 both ways, got %d and %d", a.ProductivityScore, b.ProductivityScore)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("entry depends on input order")
	}
}

func TestArchiveDayLeavesOtherDays(t *testing.T) {
	old := task("old", model.PriorityA, false, yesterday)
	tasks := []model.Task{
		old,
		task("1", model.PriorityD, true, today),
	}

	entry, remaining := ArchiveDay(tasks, nil, todayKey, time.UTC)
	if entry.TotalTasks != 1 || entry.ProductivityScore != 1 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if len(remaining) != 1 || remaining[0].ID != "old" {
		t.Fatalf("expected only yesterday's task to remain, got %v", remaining)
	}
}

func TestArchiveDayEmpty(t *testing.T) {
	entry, remaining := ArchiveDay(nil, nil, todayKey, time.UTC)
	if entry.TotalTasks != 0 || entry.CompletionRate != 0 || entry.ProductivityScore != 0 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if len(entry.PriorityBreakdown) != 4 {
		t.Fatal("breakdown should be zero-filled")
	}
	if entry.ProjectBreakdown == nil {
		t.Fatal("project breakdown should be an empty map")
	}
	if remaining == nil || len(remaining) != 0 {
		t.Fatal("expected empty remaining slice")
	}
}

func TestArchiveDayProjectBreakdown(t *testing.T) {
	projects := []model.Project{{ID: "p1", Name: "Website"}}
	t1 := task("1", model.PriorityA, true, today)
	t1.ProjectID = "p1"
	t2 := task("2", model.PriorityB, false, today)
	t2.ProjectID = "p1"
	t3 := task("3", model.PriorityC, true, today)
	t3.ProjectID = "deleted"
	t4 := task("4", model.PriorityC, true, today)

	entry, _ := ArchiveDay([]model.Task{t1, t2, t3, t4}, projects, todayKey, time.UTC)

	want := map[string]model.ProjectTally{
		"Website":            {Total: 2, Completed: 1},
		FallbackProjectLabel: {Total: 1, Completed: 1},
	}
	if !reflect.DeepEqual(entry.ProjectBreakdown, want) {
		t.Fatalf("project breakdown = %v, want %v", entry.ProjectBreakdown, want)
	}
}

func TestArchiveDayUsesCalendarDayInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 22:30 UTC on the 9th is already the 10th at UTC+3.
	late := time.Date(2025, 3, 9, 22, 30, 0, 0, time.UTC)
	tasks := []model.Task{task("1", model.PriorityA, true, late)}

	entry, _ := ArchiveDay(tasks, nil, todayKey, loc)
	if entry.TotalTasks != 1 {
		t.Fatal("task should belong to the 10th in UTC+3")
	}
	entry, _ = ArchiveDay(tasks, nil, todayKey, time.UTC)
	if entry.TotalTasks != 0 {
		t.Fatal("task should belong to the 9th in UTC")
	}
}

func TestArchiveDayDoesNotMutateInput(t *testing.T) {
	tasks := []model.Task{
		task("1", model.PriorityA, true, today),
		task("2", model.PriorityB, false, yesterday),
	}
	before := append([]model.Task(nil), tasks...)
	ArchiveDay(tasks, nil, todayKey, time.UTC)
	if !reflect.DeepEqual(tasks, before) {
		t.Fatal("input tasks were modified")
	}
}

func TestArchiveDayIdempotent(t *testing.T) {
	tasks := []model.Task{
		task("1", model.PriorityA, true, today),
		task("2", model.PriorityB, false, today),
	}

	first, _ := ArchiveDay(tasks, nil, todayKey, time.UTC)
	second, _ := ArchiveDay(tasks, nil, todayKey, time.UTC)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("same inputs produced different entries")
	}

	logs := UpsertLog(nil, first)
	logs = UpsertLog(logs, second)
	if len(logs) != 1 {
		t.Fatalf("expected one entry for the day, got %d", len(logs))
	}
}

// ============================================================
// UpsertLog / PastDays
// ============================================================

func TestUpsertLogOverwritesAndSorts(t *testing.T) {
	logs := []model.DailyLogEntry{
		{Date: "2025-03-08", TotalTasks: 1},
		{Date: "2025-03-10", TotalTasks: 2},
	}
	logs = UpsertLog(logs, model.DailyLogEntry{Date: "2025-03-09", TotalTasks: 5})
	logs = UpsertLog(logs, model.DailyLogEntry{Date: "2025-03-10", TotalTasks: 9})

	if len(logs) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(logs))
	}
	dates := []string{logs[0].Date, logs[1].Date, logs[2].Date}
	if !reflect.DeepEqual(dates, []string{"2025-03-08", "2025-03-09", "2025-03-10"}) {
		t.Fatalf("unexpected order %v", dates)
	}
	if logs[2].TotalTasks != 9 {
		t.Fatal("entry was not overwritten")
	}
}

func TestMergeLog(t *testing.T) {
	base := model.DailyLogEntry{
		Date:              "2025-03-10",
		TotalTasks:        3,
		CompletedTasks:    3,
		CompletionRate:    100,
		ProductivityScore: 27,
		PriorityBreakdown: model.PriorityBreakdown{"A": 2, "B": 1, "C": 0, "D": 0},
		ProjectBreakdown:  map[string]model.ProjectTally{"Web": {Total: 1, Completed: 1}},
	}
	add := model.DailyLogEntry{
		Date:              "2025-03-10",
		TotalTasks:        1,
		PriorityBreakdown: model.PriorityBreakdown{"A": 0, "B": 0, "C": 0, "D": 1},
		ProjectBreakdown:  map[string]model.ProjectTally{"Web": {Total: 1}},
	}

	got := MergeLog(base, add)
	if got.TotalTasks != 4 || got.CompletedTasks != 3 || got.ProductivityScore != 27 || got.CompletionRate != 75 {
		t.Fatalf("unexpected merged entry %+v", got)
	}
	if got.PriorityBreakdown["A"] != 2 || got.PriorityBreakdown["D"] != 1 {
		t.Fatalf("unexpected priorities %v", got.PriorityBreakdown)
	}
	if tally := got.ProjectBreakdown["Web"]; tally.Total != 2 || tally.Completed != 1 {
		t.Fatalf("unexpected project tally %+v", tally)
	}
	if base.TotalTasks != 3 || base.ProjectBreakdown["Web"].Total != 1 {
		t.Fatal("MergeLog mutated its input")
	}
}

func TestPastDays(t *testing.T) {
	tasks := []model.Task{
		task("1", model.PriorityA, false, today),
		task("2", model.PriorityA, false, yesterday),
		task("3", model.PriorityA, false, yesterday.AddDate(0, 0, -3)),
		task("4", model.PriorityA, false, yesterday),
	}
	got := PastDays(tasks, todayKey, time.UTC)
	want := []string{"2025-03-06", "2025-03-09"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PastDays = %v, want %v", got, want)
	}
}

func TestCompletionRate(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{5, 5, 100},
	}
	for _, tt := range tests {
		if got := CompletionRate(tt.completed, tt.total); got != tt.want {
			t.Errorf("CompletionRate(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}

// ============================================================
// Weights / SmartSort
// ============================================================

func TestWeightTablesStaySeparate(t *testing.T) {
	if ArchivalWeights.Of(model.PriorityA) != 10 || ArchivalWeights.Of(model.PriorityD) != 1 {
		t.Fatal("archival weights changed")
	}
	if SortWeights.Of(model.PriorityA) != 4 || SortWeights.Of(model.PriorityD) != 1 {
		t.Fatal("sort weights changed")
	}
}

func TestScore(t *testing.T) {
	tasks := []model.Task{
		task("1", model.PriorityB, true, today),
		task("2", "", true, today),
		task("3", model.PriorityA, false, today),
	}
	if got := Score(tasks); got != 11 {
		t.Fatalf("expected 7+4=11, got %d", got)
	}
}

func TestSmartSort(t *testing.T) {
	tasks := []model.Task{
		task("done-a", model.PriorityA, true, today),
		task("c-new", model.PriorityC, false, today),
		task("a", model.PriorityA, false, today),
		task("c-old", model.PriorityC, false, yesterday),
		task("d", model.PriorityD, false, yesterday),
	}

	sorted := SmartSort(tasks)
	var ids []string
	for _, t := range sorted {
		ids = append(ids, t.ID)
	}
	want := []string{"a", "c-old", "c-new", "d", "done-a"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("SmartSort = %v, want %v", ids, want)
	}
	if tasks[0].ID != "done-a" {
		t.Fatal("SmartSort modified its input")
	}
}
