package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/pulse/internal/archive"
	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/tracker"
)

type reportMode int

const (
	reportDaily reportMode = iota
	reportWeekly
)

type reportsModel struct {
	tr     *tracker.Tracker
	width  int
	height int

	mode   reportMode
	logs   []model.DailyLogEntry
	offset int // 7-day blocks back from today (0 = current)

	chart barchart.Model
}

func newReportsModel(tr *tracker.Tracker) reportsModel {
	return reportsModel{
		tr:    tr,
		chart: barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
	r.buildChart()
}

func (r *reportsModel) setSnapshot(s tracker.Snapshot) {
	r.logs = s.DailyLogs
	r.buildChart()
}

// dateRange returns the first and last day keys of the window.
func (r reportsModel) dateRange() (string, string) {
	today, err := time.Parse(archive.DayLayout, r.tr.Today())
	if err != nil {
		today = time.Now()
	}
	end := today.AddDate(0, 0, -7*r.offset)
	start := end.AddDate(0, 0, -6)
	return start.Format(archive.DayLayout), end.Format(archive.DayLayout)
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return r, nil
	}
	switch {
	case key.Matches(km, keys.Left):
		r.offset++
	case key.Matches(km, keys.Right):
		if r.offset > 0 {
			r.offset--
		}
	case key.Matches(km, keys.Switch):
		if r.mode == reportDaily {
			r.mode = reportWeekly
		} else {
			r.mode = reportDaily
		}
		r.offset = 0
	default:
		return r, nil
	}
	r.buildChart()
	return r, nil
}

func (r *reportsModel) buildChart() {
	chartWidth := max(r.width-8, 20)
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}
	r.chart = barchart.New(chartWidth, chartHeight)

	byDate := make(map[string]model.DailyLogEntry, len(r.logs))
	for _, l := range r.logs {
		byDate[l.Date] = l
	}

	from, _ := r.dateRange()
	start, err := time.Parse(archive.DayLayout, from)
	if err != nil {
		return
	}

	var bars []barchart.BarData
	for i := 0; i < 7; i++ {
		d := start.AddDate(0, 0, i)
		l := byDate[d.Format(archive.DayLayout)]
		bars = append(bars, barchart.BarData{
			Label: d.Format("Mon 02"),
			Values: []barchart.BarValue{{
				Name:  "score",
				Value: float64(l.ProductivityScore),
				Style: lipgloss.NewStyle().Foreground(colorPrimary),
			}},
		})
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	dailyTab := inactiveTabStyle.Render("Daily")
	weeklyTab := inactiveTabStyle.Render("Weekly")
	if r.mode == reportDaily {
		dailyTab = activeTabStyle.Render("Daily")
	} else {
		weeklyTab = activeTabStyle.Render("Weekly")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, dailyTab, weeklyTab)

	var body string
	header := lipgloss.JoinHorizontal(lipgloss.Bottom, titleStyle.Render("Reports"), "  ", modeTabs)
	if r.mode == reportDaily {
		from, to := r.dateRange()
		header = lipgloss.JoinHorizontal(lipgloss.Bottom, header, "  ", mutedStyle.Render(from+" - "+to))
		body = lipgloss.JoinVertical(lipgloss.Left,
			r.chart.View(), "", r.renderSummary(from, to), "", r.renderDailyTable(w, from, to))
	} else {
		body = r.renderWeeklyTable(w)
	}

	nav := mutedStyle.Render("  ←/→: navigate  m: switch mode  E: export")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", nav),
	)
}

func (r reportsModel) renderSummary(from, to string) string {
	s := archive.Summarize(r.logs, from, to)
	streak := archive.Streak(r.logs, r.tr.Today())
	parts := []string{
		fmt.Sprintf("score %s", highlightStyle.Render(fmt.Sprint(s.TotalScore))),
		fmt.Sprintf("done %d/%d (%s)", s.CompletedTasks, s.TotalTasks, formatPercent(s.CompletionRate)),
		fmt.Sprintf("streak %s", successStyle.Render(fmt.Sprintf("%d days", streak))),
	}
	if s.BestDay != "" {
		parts = append(parts, fmt.Sprintf("best %s (%d)", s.BestDay, s.BestScore))
	}
	return "  " + strings.Join(parts, mutedStyle.Render("  ·  "))
}

func (r reportsModel) renderDailyTable(w int, from, to string) string {
	var rows []string
	for _, l := range r.logs {
		if l.Date < from || l.Date > to {
			continue
		}
		rows = append(rows, fmt.Sprintf("  %-12s %6d %8s %7d   A%d B%d C%d D%d",
			l.Date, l.CompletedTasks, formatPercent(l.CompletionRate), l.ProductivityScore,
			l.PriorityBreakdown[model.PriorityA], l.PriorityBreakdown[model.PriorityB],
			l.PriorityBreakdown[model.PriorityC], l.PriorityBreakdown[model.PriorityD],
		))
	}
	if len(rows) == 0 {
		return mutedStyle.Render("  No archived days in this period")
	}
	head := []string{
		mutedStyle.Render(fmt.Sprintf("  %-12s %6s %8s %7s   %s", "Date", "Done", "Rate", "Score", "Priorities")),
		mutedStyle.Render("  " + strings.Repeat("─", min(w-6, 60))),
	}
	return strings.Join(append(head, rows...), "\n")
}

func (r reportsModel) renderWeeklyTable(w int) string {
	weeks := archive.Weekly(r.logs)
	if len(weeks) == 0 {
		return mutedStyle.Render("  No archived days yet")
	}
	rows := []string{
		mutedStyle.Render(fmt.Sprintf("  %-10s %5s %10s %8s %7s", "Week", "Days", "Done", "Rate", "Score")),
		mutedStyle.Render("  " + strings.Repeat("─", min(w-6, 46))),
	}
	// newest first
	for i := len(weeks) - 1; i >= 0; i-- {
		wk := weeks[i]
		rows = append(rows, fmt.Sprintf("  %-10s %5d %10s %8s %7d",
			wk.Week, wk.Days, fmt.Sprintf("%d/%d", wk.CompletedTasks, wk.TotalTasks),
			formatPercent(wk.CompletionRate), wk.Score))
	}
	return strings.Join(rows, "\n")
}
