package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength bounds task titles and project names, in characters.
const MaxTitleLength = 200

// ValidationError reports bad command input. State is never changed when one is returned.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Fields = append(e.Fields, fmt.Sprintf(format, args...))
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NormalizePriority maps an empty priority to the default and upper-cases the rest.
func NormalizePriority(p Priority) Priority {
	if p == "" {
		return DefaultPriority
	}
	return Priority(strings.ToUpper(strings.TrimSpace(string(p))))
}

func ValidateTaskFields(title string, priority Priority) error {
	var v ValidationError
	checkTitle(&v, "title", title)
	if !priority.Valid() {
		v.add("priority must be one of A, B, C, D (got %q)", priority)
	}
	return v.errOrNil()
}

func ValidateProjectName(name string) error {
	var v ValidationError
	checkTitle(&v, "name", name)
	return v.errOrNil()
}

func ValidatePomodoroSettings(s PomodoroSettings) error {
	var v ValidationError
	if s.FocusMinutes <= 0 {
		v.add("focus duration must be a positive number of minutes")
	}
	if s.ShortBreakMinutes <= 0 {
		v.add("short break duration must be a positive number of minutes")
	}
	if s.LongBreakMinutes <= 0 {
		v.add("long break duration must be a positive number of minutes")
	}
	if s.LongBreakInterval < 1 {
		v.add("long break interval must be at least 1")
	}
	return v.errOrNil()
}

func checkTitle(v *ValidationError, field, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		v.add("%s is required", field)
		return
	}
	if n := utf8.RuneCountInString(s); n > MaxTitleLength {
		v.add("%s must be at most %d characters (got %d)", field, MaxTitleLength, n)
	}
}
