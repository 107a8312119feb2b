package model

import "fmt"

// TasksScope is the key space every task list signature belongs to.
const TasksScope = "tasks"

// TaskFilter is the composite key a cached page is stored under. Two filters
// address the same page iff all five fields match, so the struct is used
// directly as a map key.
type TaskFilter struct {
	Page     int
	PageSize int
	Search   string
	Status   Status
	Priority Priority
}

// Scope reports the key space of the signature.
func (f TaskFilter) Scope() string {
	return TasksScope
}

// Unfiltered returns the first page of the same size with no filters set.
func (f TaskFilter) Unfiltered() TaskFilter {
	return TaskFilter{Page: 1, PageSize: f.PageSize}
}

// Filtered reports whether any of search, status or priority is set.
func (f TaskFilter) Filtered() bool {
	return f.Search != "" || f.Status != "" || f.Priority != ""
}

func (f TaskFilter) String() string {
	return fmt.Sprintf("%s[page=%d size=%d search=%q status=%q priority=%q]",
		f.Scope(), f.Page, f.PageSize, f.Search, f.Status, f.Priority)
}
