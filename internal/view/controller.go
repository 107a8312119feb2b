package view

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync-client/internal/cache"
	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

const DefaultPageSize = 10

type Resolver interface {
	Resolve(ctx context.Context, filter model.TaskFilter) cache.Result
	Peek(filter model.TaskFilter) cache.Result
	InvalidateTasks() int
}

type Projector interface {
	Project(page model.Page) model.Page
	Pending(id string) bool
	Settle(epoch uint64) int
}

type EmptyState string

const (
	EmptyNone       EmptyState = ""
	EmptyNoTasksYet EmptyState = "no_tasks_yet"
	EmptyNoMatches  EmptyState = "no_matches"
)

// Row is a task as displayed. Pending is set while a delete or toggle for it
// is in flight.
type Row struct {
	model.Task
	Pending bool `json:"pending"`
}

type State struct {
	Filter     model.TaskFilter
	Tasks      []Row
	Page       int
	TotalPages int
	TotalItems int
	Loaded     bool
	Status     cache.Status
	Err        error
	Empty      EmptyState
}

// Controller owns the pagination and filter state of the task list and
// derives what is shown from the cache and the overlay.
type Controller struct {
	cache   Resolver
	overlay Projector
	logger  *zap.Logger

	mu     sync.Mutex
	filter model.TaskFilter
}

func NewController(c Resolver, ov Projector, pageSize int, logger *zap.Logger) *Controller {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Controller{
		cache:   c,
		overlay: ov,
		logger:  logger,
		filter:  model.TaskFilter{Page: 1, PageSize: pageSize},
	}
}

func (c *Controller) Filter() model.TaskFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SetPage is the only setter that keeps the other fields and does not go
// back to the first page.
func (c *Controller) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	c.mu.Lock()
	c.filter.Page = page
	c.mu.Unlock()
}

func (c *Controller) SetPageSize(size int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	c.update(func(f *model.TaskFilter) { f.PageSize = size })
}

func (c *Controller) SetSearch(search string) {
	c.update(func(f *model.TaskFilter) { f.Search = search })
}

func (c *Controller) SetStatus(status model.Status) {
	c.update(func(f *model.TaskFilter) { f.Status = status })
}

func (c *Controller) SetPriority(priority model.Priority) {
	c.update(func(f *model.TaskFilter) { f.Priority = priority })
}

// ResetFilters clears search, status and priority.
func (c *Controller) ResetFilters() {
	c.update(func(f *model.TaskFilter) {
		f.Search = ""
		f.Status = ""
		f.Priority = ""
	})
}

// Refresh forces the next View to refetch.
func (c *Controller) Refresh() {
	n := c.cache.InvalidateTasks()
	c.logger.Debug("task list refresh requested", zap.Int("invalidated", n))
}

func (c *Controller) update(fn func(f *model.TaskFilter)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.filter)
	c.filter.Page = 1
}

// View resolves the current filter and returns the effective list.
func (c *Controller) View(ctx context.Context) State {
	filter := c.Filter()
	res := c.cache.Resolve(ctx, filter)

	state := State{
		Filter: filter,
		Status: res.Status,
		Err:    res.Err,
		Tasks:  []Row{},
	}
	if res.Page == nil {
		return state
	}

	if n := c.overlay.Settle(res.Epoch); n > 0 {
		c.logger.Debug("settled confirmed mutations", zap.Int("entries", n), zap.Uint64("epoch", res.Epoch))
	}
	effective := c.overlay.Project(*res.Page)
	state.Loaded = true
	state.Page = effective.Page
	state.TotalPages = effective.TotalPages
	state.TotalItems = effective.TotalItems
	for _, t := range effective.Items {
		state.Tasks = append(state.Tasks, Row{Task: t, Pending: c.overlay.Pending(t.ID)})
	}

	if len(state.Tasks) == 0 {
		state.Empty = c.classifyEmpty(filter, effective)
	}
	return state
}

func (c *Controller) classifyEmpty(filter model.TaskFilter, effective model.Page) EmptyState {
	if effective.TotalItems > 0 {
		// Rows exist, this page is just past the end.
		return EmptyNone
	}
	if !filter.Filtered() {
		return EmptyNoTasksYet
	}

	unfiltered := c.cache.Peek(filter.Unfiltered())
	if unfiltered.Page != nil && c.overlay.Project(*unfiltered.Page).TotalItems == 0 {
		return EmptyNoTasksYet
	}
	return EmptyNoMatches
}
