package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sadopc/pulse/internal/model"
)

var csvHeader = []string{"Date", "Total", "Completed", "Completion %", "Score", "A", "B", "C", "D", "Projects"}

func ToCSV(logs []model.DailyLogEntry, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, l := range logs {
		row := []string{
			l.Date,
			strconv.Itoa(l.TotalTasks),
			strconv.Itoa(l.CompletedTasks),
			strconv.Itoa(l.CompletionRate),
			strconv.Itoa(l.ProductivityScore),
		}
		for _, p := range model.Priorities {
			row = append(row, strconv.Itoa(l.PriorityBreakdown[p]))
		}
		row = append(row, formatProjects(l.ProjectBreakdown))
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// formatProjects renders a project breakdown as "name completed/total" pairs
// sorted by name.
func formatProjects(breakdown map[string]model.ProjectTally) string {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		t := breakdown[name]
		parts = append(parts, fmt.Sprintf("%s %d/%d", name, t.Completed, t.Total))
	}
	return strings.Join(parts, "; ")
}
