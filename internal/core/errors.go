package core

import "fmt"

// ValidationError reports malformed input. The operation aborts before any
// write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateYearError reports that a non-template period already exists for
// the user and year.
type DuplicateYearError struct {
	Year int
}

func (e DuplicateYearError) Error() string {
	return fmt.Sprintf("a budget period for year %d already exists", e.Year)
}

// NotFoundError reports that a referenced period or template does not
// resolve for the requesting user.
type NotFoundError struct {
	Kind string // "period" or "template"
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
