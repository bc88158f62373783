package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/pulse/internal/archive"
	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/tracker"
)

type tasksModel struct {
	tr     *tracker.Tracker
	width  int
	height int

	snap   tracker.Snapshot
	items  []model.Task
	cursor int

	formActive bool
	form       *huh.Form
	editingID  string // empty for a new task

	// Form field pointers (survive value copies)
	formTitle    *string
	formPriority *model.Priority
	formProject  *string
}

func newTasksModel(tr *tracker.Tracker) tasksModel {
	title, project := "", ""
	priority := model.DefaultPriority
	return tasksModel{
		tr:           tr,
		formTitle:    &title,
		formPriority: &priority,
		formProject:  &project,
	}
}

func (m *tasksModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

func (m *tasksModel) setSnapshot(s tracker.Snapshot) {
	m.snap = s
	m.items = archive.SmartSort(s.Tasks)
	if m.cursor >= len(m.items) {
		m.cursor = max(0, len(m.items)-1)
	}
}

func (m tasksModel) selected() (model.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return model.Task{}, false
	}
	return m.items[m.cursor], true
}

func (m tasksModel) update(msg tea.Msg) (tasksModel, tea.Cmd) {
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(km, keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(km, keys.New):
		return m.showForm(nil)
	case key.Matches(km, keys.Edit):
		if t, ok := m.selected(); ok {
			return m.showForm(&t)
		}
	case key.Matches(km, keys.Toggle), key.Matches(km, keys.Enter):
		if t, ok := m.selected(); ok {
			return m, m.toggle(t)
		}
	case key.Matches(km, keys.Delete):
		if t, ok := m.selected(); ok {
			return m, m.remove(t)
		}
	}
	return m, nil
}

func (m tasksModel) toggle(t model.Task) tea.Cmd {
	tr := m.tr
	return func() tea.Msg {
		return resultMsg(tr.ToggleTask(t.ID), "Toggled "+t.Title)
	}
}

func (m tasksModel) remove(t model.Task) tea.Cmd {
	tr := m.tr
	return func() tea.Msg {
		return resultMsg(tr.RemoveTask(t.ID), "Deleted "+t.Title)
	}
}

func (m tasksModel) projectOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("No project", "")}
	for _, p := range m.snap.Projects {
		if p.Completed() {
			continue
		}
		opts = append(opts, huh.NewOption(p.Name, p.ID))
	}
	return opts
}

// showForm opens the task form, prefilled from existing when editing.
func (m tasksModel) showForm(existing *model.Task) (tasksModel, tea.Cmd) {
	*m.formTitle = ""
	*m.formPriority = model.DefaultPriority
	*m.formProject = ""
	m.editingID = ""
	if existing != nil {
		*m.formTitle = existing.Title
		*m.formPriority = model.NormalizePriority(existing.Priority)
		*m.formProject = existing.ProjectID
		m.editingID = existing.ID
	}

	priorityOptions := make([]huh.Option[model.Priority], len(model.Priorities))
	for i, p := range model.Priorities {
		priorityOptions[i] = huh.NewOption(string(p), p)
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(m.formTitle).
				CharLimit(model.MaxTitleLength).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					return nil
				}),
			huh.NewSelect[model.Priority]().Title("Priority").Options(priorityOptions...).Value(m.formPriority),
			huh.NewSelect[string]().Title("Project").Options(m.projectOptions()...).Value(m.formProject),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m tasksModel) updateForm(msg tea.Msg) (tasksModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			m.formActive = false
			m.form = nil
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.formActive = false
		m.form = nil
		return m, m.submit(m.editingID, *m.formTitle, *m.formPriority, *m.formProject)
	}
	return m, cmd
}

func (m tasksModel) submit(id, title string, priority model.Priority, projectID string) tea.Cmd {
	tr := m.tr
	return func() tea.Msg {
		if id == "" {
			res := tr.AddTask(tracker.TaskInput{Title: title, Priority: priority, ProjectID: projectID})
			return resultMsg(res.Result, "Added "+res.Task.Title)
		}
		return resultMsg(tr.UpdateTask(id, tracker.TaskPatch{
			Title:     &title,
			Priority:  &priority,
			ProjectID: &projectID,
		}), "Updated "+title)
	}
}

func (m tasksModel) view() string {
	w := m.width - 4

	if m.formActive && m.form != nil {
		title := titleStyle.Render("New Task")
		if m.editingID != "" {
			title = titleStyle.Render("Edit Task")
		}
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", m.form.View()))
	}

	done := 0
	for _, t := range m.items {
		if t.Done {
			done++
		}
	}
	header := fmt.Sprintf("%s  %s  %s",
		titleStyle.Render("Today "+m.tr.Today()),
		mutedStyle.Render(fmt.Sprintf("%d/%d done", done, len(m.items))),
		highlightStyle.Render(fmt.Sprintf("score %d", archive.Score(m.items))),
	)

	if len(m.items) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			header,
			"",
			mutedStyle.Render("No tasks yet. Press n to add one."),
		))
	}

	rows := []string{header, ""}
	for i, t := range m.items {
		cursor := "  "
		style := normalItemStyle
		if t.Done {
			style = doneItemStyle
		}
		if i == m.cursor {
			cursor = "> "
			if !t.Done {
				style = selectedItemStyle
			}
		}
		check := "[ ]"
		if t.Done {
			check = successStyle.Render("[x]")
		}
		project := ""
		if p, ok := m.snap.ProjectIDToProject[t.ProjectID]; ok {
			project = mutedStyle.Render("  " + p.Name)
		}
		rows = append(rows, fmt.Sprintf("%s%s %s %s%s",
			cursor, check, priorityBadge(model.NormalizePriority(t.Priority)), style.Render(t.Title), project))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  e: edit  x: toggle  d: delete  A: archive today"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
