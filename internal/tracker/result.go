package tracker

import (
	"errors"

	"github.com/sadopc/pulse/internal/model"
)

// Result reports the outcome of a command. Errors is empty when OK is true.
type Result struct {
	OK     bool
	Errors []string
}

type TaskResult struct {
	Result
	Task model.Task
}

type ProjectResult struct {
	Result
	Project model.Project
}

func ok() Result { return Result{OK: true} }

// fail converts err to a failed Result, expanding validation errors into
// their individual messages.
func fail(err error) Result {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return Result{Errors: append([]string(nil), verr.Fields...)}
	}
	return Result{Errors: []string{err.Error()}}
}

// Err returns the result's errors as a single error, or nil when OK.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &model.ValidationError{Fields: r.Errors}
}
