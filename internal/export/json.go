package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/pulse/internal/archive"
	"github.com/sadopc/pulse/internal/model"
)

type jsonExport struct {
	ExportedAt string      `json:"exported_at"`
	Count      int         `json:"count"`
	Summary    jsonSummary `json:"summary"`
	Entries    []jsonEntry `json:"entries"`
}

type jsonSummary struct {
	TotalTasks            int    `json:"total_tasks"`
	CompletedTasks        int    `json:"completed_tasks"`
	AverageCompletionRate int    `json:"average_completion_rate"`
	TotalScore            int    `json:"total_score"`
	BestDay               string `json:"best_day,omitempty"`
}

type jsonEntry struct {
	Date              string               `json:"date"`
	TotalTasks        int                  `json:"total_tasks"`
	CompletedTasks    int                  `json:"completed_tasks"`
	CompletionRate    int                  `json:"completion_rate"`
	ProductivityScore int                  `json:"productivity_score"`
	Priorities        map[string]int       `json:"priority_breakdown"`
	Projects          map[string]jsonTally `json:"project_breakdown"`
}

type jsonTally struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

func ToJSON(logs []model.DailyLogEntry, path string) error {
	s := archive.Summarize(logs, "", "")
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(logs),
		Summary: jsonSummary{
			TotalTasks:            s.TotalTasks,
			CompletedTasks:        s.CompletedTasks,
			AverageCompletionRate: s.AverageCompletionRate,
			TotalScore:            s.TotalScore,
			BestDay:               s.BestDay,
		},
	}

	for _, l := range logs {
		e := jsonEntry{
			Date:              l.Date,
			TotalTasks:        l.TotalTasks,
			CompletedTasks:    l.CompletedTasks,
			CompletionRate:    l.CompletionRate,
			ProductivityScore: l.ProductivityScore,
			Priorities:        make(map[string]int, len(model.Priorities)),
			Projects:          make(map[string]jsonTally, len(l.ProjectBreakdown)),
		}
		for _, p := range model.Priorities {
			e.Priorities[string(p)] = l.PriorityBreakdown[p]
		}
		for name, t := range l.ProjectBreakdown {
			e.Projects[name] = jsonTally{Total: t.Total, Completed: t.Completed}
		}
		export.Entries = append(export.Entries, e)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
