package archive

import (
	"sort"

	"github.com/sadopc/pulse/internal/model"
)

// Weights assigns a value to each priority class.
type Weights map[model.Priority]int

func (w Weights) Of(p model.Priority) int {
	return w[p]
}

// ArchivalWeights scores completed tasks in the daily log.
var ArchivalWeights = Weights{
	model.PriorityA: 10,
	model.PriorityB: 7,
	model.PriorityC: 4,
	model.PriorityD: 1,
}

// SortWeights orders the working list. It is a separate scale from
// ArchivalWeights and the two are not interchangeable.
var SortWeights = Weights{
	model.PriorityA: 4,
	model.PriorityB: 3,
	model.PriorityC: 2,
	model.PriorityD: 1,
}

// Score sums ArchivalWeights over the completed tasks.
func Score(tasks []model.Task) int {
	total := 0
	for _, t := range tasks {
		if t.Done {
			total += ArchivalWeights.Of(model.NormalizePriority(t.Priority))
		}
	}
	return total
}

// SmartSort returns a copy of tasks with pending tasks first, then by
// descending SortWeights, then oldest first, then by id.
func SmartSort(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Done != b.Done {
			return !a.Done
		}
		wa := SortWeights.Of(model.NormalizePriority(a.Priority))
		wb := SortWeights.Of(model.NormalizePriority(b.Priority))
		if wa != wb {
			return wa > wb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
