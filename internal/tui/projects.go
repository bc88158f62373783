package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/tracker"
)

type projectsModel struct {
	tr     *tracker.Tracker
	width  int
	height int

	snap   tracker.Snapshot
	cursor int

	formActive bool
	form       *huh.Form
	formName   *string

	// confirmID is the project awaiting a second delete key press.
	confirmID string
}

func newProjectsModel(tr *tracker.Tracker) projectsModel {
	name := ""
	return projectsModel{tr: tr, formName: &name}
}

func (p *projectsModel) setSize(w, h int) {
	p.width = w
	p.height = h
}

func (p *projectsModel) setSnapshot(s tracker.Snapshot) {
	p.snap = s
	if p.cursor >= len(s.Projects) {
		p.cursor = max(0, len(s.Projects)-1)
	}
}

func (p projectsModel) selected() (model.Project, bool) {
	if p.cursor < 0 || p.cursor >= len(p.snap.Projects) {
		return model.Project{}, false
	}
	return p.snap.Projects[p.cursor], true
}

func (p projectsModel) update(msg tea.Msg) (projectsModel, tea.Cmd) {
	if p.formActive && p.form != nil {
		return p.updateForm(msg)
	}

	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	confirming := p.confirmID
	p.confirmID = ""
	switch {
	case key.Matches(km, keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(km, keys.Down):
		if p.cursor < len(p.snap.Projects)-1 {
			p.cursor++
		}
	case key.Matches(km, keys.New):
		return p.showForm()
	case key.Matches(km, keys.Complete):
		if proj, ok := p.selected(); ok {
			tr := p.tr
			return p, func() tea.Msg {
				return resultMsg(tr.CompleteProject(proj.ID), "Completed "+proj.Name)
			}
		}
	case key.Matches(km, keys.Delete):
		proj, ok := p.selected()
		if !ok {
			return p, nil
		}
		if confirming != proj.ID {
			p.confirmID = proj.ID
			text := fmt.Sprintf("Press d again to delete %s", proj.Name)
			if n := p.snap.ProjectIDToTaskCount[proj.ID]; n > 0 {
				text = fmt.Sprintf("Press d again to delete %s and its %d tasks", proj.Name, n)
			}
			return p, func() tea.Msg { return statusMsg{text: text} }
		}
		tr := p.tr
		return p, func() tea.Msg {
			return resultMsg(tr.RemoveProject(proj.ID), "Deleted "+proj.Name)
		}
	}
	return p, nil
}

func (p projectsModel) showForm() (projectsModel, tea.Cmd) {
	*p.formName = ""
	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Project Name").Value(p.formName).
				CharLimit(model.MaxTitleLength).
				Validate(model.ValidateProjectName),
		),
	).WithShowHelp(true).WithShowErrors(true)

	p.formActive = true
	return p, p.form.Init()
}

func (p projectsModel) updateForm(msg tea.Msg) (projectsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			p.formActive = false
			p.form = nil
			return p, nil
		}
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	if p.form.State == huh.StateCompleted {
		p.formActive = false
		p.form = nil
		tr, name := p.tr, *p.formName
		return p, func() tea.Msg {
			res := tr.AddProject(tracker.ProjectInput{Name: name})
			return resultMsg(res.Result, "Added project "+res.Project.Name)
		}
	}
	return p, cmd
}

func (p projectsModel) view() string {
	w := p.width - 4

	if p.formActive && p.form != nil {
		title := titleStyle.Render("New Project")
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", p.form.View()))
	}

	title := titleStyle.Render("Projects")
	if len(p.snap.Projects) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No projects yet. Press n to create one."),
		))
	}

	rows := []string{title, ""}
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-3s %-28s %-8s %s", "", "Name", "Tasks", "Status")))
	for i, proj := range p.snap.Projects {
		cursor := "  "
		style := normalItemStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		dot := highlightStyle.Render("●")
		status := mutedStyle.Render("active")
		if proj.Completed() {
			dot = successStyle.Render("✓")
			status = successStyle.Render("completed " + proj.CompletedAt.Local().Format("Jan 02"))
		}
		rows = append(rows, fmt.Sprintf("%s%s %s %s",
			cursor, dot,
			style.Render(fmt.Sprintf("%-28s %-8d", proj.Name, p.snap.ProjectIDToTaskCount[proj.ID])),
			status,
		))
	}

	if n := len(p.snap.Milestones); n > 0 {
		rows = append(rows, "", titleStyle.Render("Milestones"))
		start := max(0, n-5)
		for _, m := range p.snap.Milestones[start:] {
			rows = append(rows, fmt.Sprintf("  %s %s  %s",
				successStyle.Render("★"), m.Name, mutedStyle.Render(m.CompletedAt.Local().Format("2006-01-02"))))
		}
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  c: complete  d: delete (twice to confirm)"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
