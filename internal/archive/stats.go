package archive

import (
	"fmt"
	"sort"
	"time"

	"github.com/sadopc/pulse/internal/model"
)

// Summary aggregates a range of daily log entries.
type Summary struct {
	Days                  int
	TotalTasks            int
	CompletedTasks        int
	CompletionRate        int
	AverageCompletionRate int
	TotalScore            int
	BestDay               string
	BestScore             int
}

// Summarize aggregates the entries whose date falls in [from, to]. Empty
// bounds are open.
func Summarize(logs []model.DailyLogEntry, from, to string) Summary {
	var s Summary
	rateSum := 0
	for _, l := range logs {
		if (from != "" && l.Date < from) || (to != "" && l.Date > to) {
			continue
		}
		s.Days++
		s.TotalTasks += l.TotalTasks
		s.CompletedTasks += l.CompletedTasks
		s.TotalScore += l.ProductivityScore
		rateSum += l.CompletionRate
		if l.ProductivityScore > s.BestScore || s.BestDay == "" {
			s.BestDay = l.Date
			s.BestScore = l.ProductivityScore
		}
	}
	if s.Days > 0 {
		s.AverageCompletionRate = int(float64(rateSum)/float64(s.Days) + 0.5)
	}
	s.CompletionRate = CompletionRate(s.CompletedTasks, s.TotalTasks)
	return s
}

// Streak counts consecutive days with at least one completed task, ending
// today or, if today has nothing yet, yesterday.
func Streak(logs []model.DailyLogEntry, today string) int {
	productive := make(map[string]bool, len(logs))
	for _, l := range logs {
		if l.CompletedTasks > 0 {
			productive[l.Date] = true
		}
	}

	day, err := time.Parse(DayLayout, today)
	if err != nil {
		return 0
	}
	if !productive[today] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for productive[day.Format(DayLayout)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// WeekKey returns the ISO week of a day key, e.g. "2025-W11".
func WeekKey(date string) (string, error) {
	t, err := time.Parse(DayLayout, date)
	if err != nil {
		return "", fmt.Errorf("parse day %q: %w", date, err)
	}
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week), nil
}

// WeekSummary is the roll-up of one ISO week.
type WeekSummary struct {
	Week           string
	Days           int
	TotalTasks     int
	CompletedTasks int
	CompletionRate int
	Score          int
}

// Weekly groups entries by ISO week, oldest week first. Entries with an
// unparseable date are skipped.
func Weekly(logs []model.DailyLogEntry) []WeekSummary {
	byWeek := make(map[string]*WeekSummary)
	for _, l := range logs {
		key, err := WeekKey(l.Date)
		if err != nil {
			continue
		}
		w, ok := byWeek[key]
		if !ok {
			w = &WeekSummary{Week: key}
			byWeek[key] = w
		}
		w.Days++
		w.TotalTasks += l.TotalTasks
		w.CompletedTasks += l.CompletedTasks
		w.Score += l.ProductivityScore
	}

	out := make([]WeekSummary, 0, len(byWeek))
	for _, w := range byWeek {
		w.CompletionRate = CompletionRate(w.CompletedTasks, w.TotalTasks)
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week < out[j].Week })
	return out
}
