package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

const MaxDescriptionLength = 1000

var (
	ErrValidation = errors.New("validation error")
)

// ValidationError lists the form fields that failed client-side checks.
// It is shown next to the fields, never as a notification.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validateDraft(d model.Draft) error {
	fields := map[string]string{}
	if strings.TrimSpace(d.Title) == "" {
		fields["title"] = "Title is required"
	}
	if d.DueDate.IsZero() {
		fields["dueDate"] = "Due date is required"
	}
	checkDescription(fields, d.Description)
	checkEnums(fields, d.Priority, d.Status)
	return result(fields)
}

func validatePatch(p model.Patch) error {
	fields := map[string]string{}
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
		fields["title"] = "Title is required"
	}
	if p.DueDate == nil || p.DueDate.IsZero() {
		fields["dueDate"] = "Due date is required"
	}
	if p.Description != nil {
		checkDescription(fields, *p.Description)
	}
	var priority model.Priority
	if p.Priority != nil {
		priority = *p.Priority
	}
	var status model.Status
	if p.Status != nil {
		status = *p.Status
	}
	checkEnums(fields, priority, status)
	return result(fields)
}

func checkDescription(fields map[string]string, desc string) {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		fields["description"] = fmt.Sprintf("Description must be at most %d characters", MaxDescriptionLength)
	}
}

func checkEnums(fields map[string]string, p model.Priority, s model.Status) {
	switch p {
	case "", model.PriorityLow, model.PriorityMedium, model.PriorityHigh:
	default:
		fields["priority"] = "Priority must be Low, Medium or High"
	}
	switch s {
	case "", model.StatusPending, model.StatusCompleted:
	default:
		fields["status"] = "Status must be Pending or Completed"
	}
}

func result(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
