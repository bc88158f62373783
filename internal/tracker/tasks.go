package tracker

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/store"
)

type TaskInput struct {
	Title     string
	ProjectID string
	Priority  model.Priority
}

// TaskPatch changes the fields that are set.
type TaskPatch struct {
	Title     *string
	ProjectID *string
	Priority  *model.Priority
	Done      *bool
}

func (t *Tracker) AddTask(in TaskInput) TaskResult {
	priority := model.NormalizePriority(in.Priority)
	if err := model.ValidateTaskFields(in.Title, priority); err != nil {
		return TaskResult{Result: fail(err)}
	}

	task := model.Task{
		ID:        t.cfg.NewID(),
		Title:     strings.TrimSpace(in.Title),
		ProjectID: in.ProjectID,
		Priority:  priority,
		CreatedAt: t.now(),
	}

	err := t.store.Update(func(b *store.Batch) error {
		if task.ProjectID != "" {
			if err := requireProject(b, task.ProjectID); err != nil {
				return err
			}
		}
		tasks, err := store.Get(b, store.TasksKey)
		if err != nil {
			return err
		}
		return store.Put(b, store.TasksKey, append(tasks, task))
	})
	if err != nil {
		return TaskResult{Result: fail(err)}
	}

	t.log.Debug("task added", zap.String("id", task.ID), zap.String("priority", string(task.Priority)))
	return TaskResult{Result: ok(), Task: task}
}

func (t *Tracker) ToggleTask(id string) Result {
	return t.editTask(id, "", func(task *model.Task) error {
		task.SetDone(!task.Done, t.now())
		return nil
	})
}

func (t *Tracker) RemoveTask(id string) Result {
	_, err := store.Update(t.store, store.TasksKey, func(tasks []model.Task) ([]model.Task, error) {
		out := make([]model.Task, 0, len(tasks))
		found := false
		for _, task := range tasks {
			if task.ID == id {
				found = true
				continue
			}
			out = append(out, task)
		}
		if !found {
			return nil, taskNotFound(id)
		}
		return out, nil
	})
	if err != nil {
		return fail(err)
	}
	return ok()
}

func (t *Tracker) UpdateTask(id string, patch TaskPatch) Result {
	var projectID string
	if patch.ProjectID != nil {
		projectID = *patch.ProjectID
	}
	return t.editTask(id, projectID, func(task *model.Task) error {
		next := *task
		if patch.Title != nil {
			next.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Priority != nil {
			next.Priority = model.NormalizePriority(*patch.Priority)
		}
		if patch.ProjectID != nil {
			next.ProjectID = *patch.ProjectID
		}
		if err := model.ValidateTaskFields(next.Title, next.Priority); err != nil {
			return err
		}
		if patch.Done != nil && *patch.Done != next.Done {
			next.SetDone(*patch.Done, t.now())
		}
		*task = next
		return nil
	})
}

// editTask applies fn to the task with id. A non-empty projectID must name an
// existing project.
func (t *Tracker) editTask(id, projectID string, fn func(*model.Task) error) Result {
	err := t.store.Update(func(b *store.Batch) error {
		if projectID != "" {
			if err := requireProject(b, projectID); err != nil {
				return err
			}
		}
		tasks, err := store.Get(b, store.TasksKey)
		if err != nil {
			return err
		}
		for i := range tasks {
			if tasks[i].ID != id {
				continue
			}
			if err := fn(&tasks[i]); err != nil {
				return err
			}
			return store.Put(b, store.TasksKey, tasks)
		}
		return taskNotFound(id)
	})
	if err != nil {
		return fail(err)
	}
	return ok()
}

func requireProject(b *store.Batch, id string) error {
	projects, err := store.Get(b, store.ProjectsKey)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if p.ID == id {
			return nil
		}
	}
	return &model.ValidationError{Fields: []string{fmt.Sprintf("project %q does not exist", id)}}
}

func taskNotFound(id string) error {
	return &model.ValidationError{Fields: []string{fmt.Sprintf("task %q not found", id)}}
}
