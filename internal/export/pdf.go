package export

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/johnfercher/maroto/pkg/color"
	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"

	"github.com/sadopc/pulse/internal/archive"
	"github.com/sadopc/pulse/internal/model"
)

var pdfHeaders = []string{"Date", "Tasks", "Done", "Rate", "Score"}

var pdfTable = props.TableList{
	HeaderProp: props.TableListContent{
		Size:      10,
		GridSizes: []uint{4, 2, 2, 2, 2},
	},
	ContentProp: props.TableListContent{
		Size:      10,
		GridSizes: []uint{4, 2, 2, 2, 2},
	},
	Align:                consts.Center,
	AlternatedBackground: &color.Color{Red: 240, Green: 240, Blue: 240},
	HeaderContentSpace:   1,
	Line:                 false,
}

// ToPDF writes a report of the entries dated within [from, to], grouped by
// ISO week, newest week first. Empty bounds are open.
func ToPDF(logs []model.DailyLogEntry, from, to, path string) error {
	var inRange []model.DailyLogEntry
	for _, l := range logs {
		if (from != "" && l.Date < from) || (to != "" && l.Date > to) {
			continue
		}
		inRange = append(inRange, l)
	}

	m := pdf.NewMaroto(consts.Portrait, consts.A4)
	m.SetPageMargins(20, 10, 20)

	m.RegisterHeader(func() {
		m.Row(10, func() {
			m.Col(12, func() {
				m.Text("Productivity Report", props.Text{
					Top:   3,
					Style: consts.Bold,
					Align: consts.Center,
					Size:  16,
				})
			})
		})
		m.Row(10, func() {
			m.Col(12, func() {
				m.Text(rangeLabel(from, to), props.Text{
					Top:   3,
					Style: consts.Normal,
					Align: consts.Center,
					Size:  12,
				})
			})
		})
	})

	groups := make(map[string][]model.DailyLogEntry)
	var weeks []string
	for _, l := range inRange {
		week, err := archive.WeekKey(l.Date)
		if err != nil {
			continue
		}
		if _, ok := groups[week]; !ok {
			weeks = append(weeks, week)
		}
		groups[week] = append(groups[week], l)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(weeks)))

	for _, week := range weeks {
		entries := groups[week]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })

		rows := make([][]string, 0, len(entries))
		for _, l := range entries {
			rows = append(rows, []string{
				l.Date,
				strconv.Itoa(l.TotalTasks),
				strconv.Itoa(l.CompletedTasks),
				fmt.Sprintf("%d%%", l.CompletionRate),
				strconv.Itoa(l.ProductivityScore),
			})
		}

		m.Row(10, func() {
			m.Col(12, func() {
				m.Text(week, props.Text{
					Top:   5,
					Style: consts.Bold,
					Size:  12,
					Align: consts.Left,
				})
			})
		})

		m.TableList(pdfHeaders, rows, pdfTable)

		s := archive.Summarize(entries, "", "")
		m.Row(10, func() {
			m.Col(12, func() {
				m.Text(fmt.Sprintf("Week score: %d, completion: %d%%", s.TotalScore, s.CompletionRate), props.Text{
					Style: consts.Bold,
					Align: consts.Right,
					Size:  10,
				})
			})
		})
		m.Row(5, func() {})
	}

	total := archive.Summarize(inRange, "", "")
	m.Row(20, func() {
		m.Col(12, func() {
			m.Text(fmt.Sprintf("Days: %d  Tasks: %d/%d  Average completion: %d%%  Total score: %d",
				total.Days, total.CompletedTasks, total.TotalTasks, total.AverageCompletionRate, total.TotalScore),
				props.Text{
					Top:   10,
					Style: consts.Bold,
					Align: consts.Right,
					Size:  12,
				})
		})
	})

	if err := m.OutputFileAndClose(path); err != nil {
		os.Remove(path)
		return fmt.Errorf("write pdf file: %w", err)
	}
	return nil
}

func rangeLabel(from, to string) string {
	switch {
	case from == "" && to == "":
		return "All days"
	case from == "":
		return "Until " + to
	case to == "":
		return "From " + from
	}
	return fmt.Sprintf("%s - %s", from, to)
}
