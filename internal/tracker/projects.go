package tracker

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/store"
)

type ProjectInput struct {
	Name string
}

func (t *Tracker) AddProject(in ProjectInput) ProjectResult {
	if err := model.ValidateProjectName(in.Name); err != nil {
		return ProjectResult{Result: fail(err)}
	}
	project := model.Project{
		ID:        t.cfg.NewID(),
		Name:      strings.TrimSpace(in.Name),
		CreatedAt: t.now(),
	}
	_, err := store.Update(t.store, store.ProjectsKey, func(projects []model.Project) ([]model.Project, error) {
		return append(projects, project), nil
	})
	if err != nil {
		return ProjectResult{Result: fail(err)}
	}
	t.log.Debug("project added", zap.String("id", project.ID))
	return ProjectResult{Result: ok(), Project: project}
}

// CompleteProject marks the project completed and records its milestone.
// Completing an already completed project changes nothing.
func (t *Tracker) CompleteProject(id string) Result {
	err := t.store.Update(func(b *store.Batch) error {
		projects, err := store.Get(b, store.ProjectsKey)
		if err != nil {
			return err
		}
		i := indexOfProject(projects, id)
		if i < 0 {
			return projectNotFound(id)
		}
		if projects[i].Completed() {
			return nil
		}

		now := t.now()
		projects[i].CompletedAt = &now
		milestones, err := store.Get(b, store.MilestonesKey)
		if err != nil {
			return err
		}
		for _, m := range milestones {
			if m.ProjectID == id {
				// Recorded by an earlier completion; never rewritten.
				return store.Put(b, store.ProjectsKey, projects)
			}
		}
		milestones = append(milestones, model.Milestone{
			ID:          t.cfg.NewID(),
			ProjectID:   id,
			Name:        projects[i].Name,
			CompletedAt: now,
		})
		if err := store.Put(b, store.ProjectsKey, projects); err != nil {
			return err
		}
		return store.Put(b, store.MilestonesKey, milestones)
	})
	if err != nil {
		return fail(err)
	}
	return ok()
}

// RemoveProject deletes the project. Under DeleteCascade its tasks are deleted
// in the same write; under DeleteOrphan they keep the dangling reference.
func (t *Tracker) RemoveProject(id string) Result {
	removed := 0
	err := t.store.Update(func(b *store.Batch) error {
		projects, err := store.Get(b, store.ProjectsKey)
		if err != nil {
			return err
		}
		i := indexOfProject(projects, id)
		if i < 0 {
			return projectNotFound(id)
		}
		projects = append(projects[:i:i], projects[i+1:]...)
		if err := store.Put(b, store.ProjectsKey, projects); err != nil {
			return err
		}

		if t.cfg.DeletePolicy != DeleteCascade {
			return nil
		}
		tasks, err := store.Get(b, store.TasksKey)
		if err != nil {
			return err
		}
		kept := make([]model.Task, 0, len(tasks))
		for _, task := range tasks {
			if task.ProjectID == id {
				removed++
				continue
			}
			kept = append(kept, task)
		}
		return store.Put(b, store.TasksKey, kept)
	})
	if err != nil {
		return fail(err)
	}
	t.log.Debug("project removed",
		zap.String("id", id),
		zap.String("policy", string(t.cfg.DeletePolicy)),
		zap.Int("tasksRemoved", removed),
	)
	return ok()
}

func indexOfProject(projects []model.Project, id string) int {
	for i, p := range projects {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func projectNotFound(id string) error {
	return &model.ValidationError{Fields: []string{fmt.Sprintf("project %q not found", id)}}
}
