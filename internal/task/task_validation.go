package task

import (
	"fmt"
	"strings"

	"github.com/mahavishnu/mahavishnu/internal/ident"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error returns a combined error message.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// ToError returns an error if there are validation errors, nil otherwise.
func (e ValidationErrors) ToError() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validate checks all field constraints on a task and returns validation errors.
func (t *Task) Validate() ValidationErrors {
	var errs ValidationErrors

	if !ident.Validate(t.ID) {
		errs = append(errs, ValidationError{
			Field:   "id",
			Value:   t.ID,
			Message: "invalid identifier",
		})
	}

	if n := len(t.Title); n < TitleMinLen || n > TitleMaxLen {
		errs = append(errs, ValidationError{
			Field:   "title",
			Value:   t.Title,
			Message: fmt.Sprintf("length must be %d-%d characters", TitleMinLen, TitleMaxLen),
		})
	}

	if !IsValidPriority(t.Priority) {
		errs = append(errs, ValidationError{
			Field:   "priority",
			Value:   string(t.Priority),
			Message: "invalid priority",
		})
	}

	if !IsValidStatus(t.Status) {
		errs = append(errs, ValidationError{
			Field:   "status",
			Value:   string(t.Status),
			Message: "invalid status",
		})
	}

	if t.EstimatedSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "estimated_seconds",
			Value:   fmt.Sprintf("%d", t.EstimatedSeconds),
			Message: "must not be negative",
		})
	}

	return errs
}
