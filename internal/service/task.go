package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync-client/internal/gateway"
	"github.com/BuzzLyutic/task-sync-client/internal/model"
	"github.com/BuzzLyutic/task-sync-client/internal/overlay"
	"github.com/BuzzLyutic/task-sync-client/internal/worker"
)

var (
	ErrNotConfirmed = errors.New("delete not confirmed")
)

const (
	msgCreated      = "Task created successfully!"
	msgUpdated      = "Task updated successfully!"
	msgDeleted      = "Task deleted successfully!"
	msgToggled      = "Task updated!"
	msgSaveFailed   = "Failed to save task"
	msgDeleteFailed = "Failed to delete task"
	msgToggleFailed = "Failed to update task"

	deletePrompt = "Are you sure you want to delete this task?"
)

// Confirmer asks the user to acknowledge a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

type Notifier interface {
	Success(message string) int64
	Error(message string) int64
}

type Invalidator interface {
	InvalidateTasks() int
	Epoch() uint64
}

type Dispatcher interface {
	Submit(job worker.Job) error
}

// EditSession is the open task form. Task is nil while creating.
type EditSession struct {
	Open bool
	Task *model.Task
}

// TaskService sequences task mutations. Delete and toggle show their effect
// through the overlay before the gateway answers and until a refetch
// reflects it; create and update do not.
type TaskService struct {
	gateway    gateway.Gateway
	cache      Invalidator
	overlay    *overlay.Overlay
	notifier   Notifier
	confirmer  Confirmer
	dispatcher Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	session EditSession
}

func NewTaskService(
	gw gateway.Gateway,
	cache Invalidator,
	ov *overlay.Overlay,
	notifier Notifier,
	confirmer Confirmer,
	dispatcher Dispatcher,
	logger *zap.Logger,
) *TaskService {
	return &TaskService{
		gateway:    gw,
		cache:      cache,
		overlay:    ov,
		notifier:   notifier,
		confirmer:  confirmer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (s *TaskService) Create(ctx context.Context, draft model.Draft) (model.Task, error) {
	if err := validateDraft(draft); err != nil {
		return model.Task{}, err
	}

	task, err := s.gateway.Create(ctx, draft)
	if err != nil {
		s.notifier.Error(gateway.Message(err, msgSaveFailed))
		s.logger.Warn("create task failed", zap.Error(err))
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}

	s.cache.InvalidateTasks()
	s.CloseSession()
	s.notifier.Success(msgCreated)
	s.logger.Info("task created", zap.String("task_id", task.ID))
	return task, nil
}

func (s *TaskService) Update(ctx context.Context, id string, patch model.Patch) (model.Task, error) {
	if err := validatePatch(patch); err != nil {
		return model.Task{}, err
	}

	task, err := s.gateway.Update(ctx, id, patch)
	if err != nil {
		s.notifier.Error(gateway.Message(err, msgSaveFailed))
		s.logger.Warn("update task failed", zap.String("task_id", id), zap.Error(err))
		return model.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}

	s.cache.InvalidateTasks()
	s.CloseSession()
	s.notifier.Success(msgUpdated)
	s.logger.Info("task updated", zap.String("task_id", id))
	return task, nil
}

// Delete asks for confirmation, hides the row and waits for the gateway.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	token, err := s.beginDelete(ctx, id)
	if err != nil {
		return err
	}
	return s.settleDelete(ctx, id, token)
}

// DeleteAsync is Delete with the gateway call handed to the dispatcher. It
// returns once the row is hidden.
func (s *TaskService) DeleteAsync(ctx context.Context, id string) error {
	token, err := s.beginDelete(ctx, id)
	if err != nil {
		return err
	}
	return s.dispatch("delete", id, token, func(ctx context.Context) error {
		return s.settleDelete(ctx, id, token)
	})
}

// ToggleComplete shows the opposite of current right away and asks the
// gateway to persist it.
func (s *TaskService) ToggleComplete(ctx context.Context, id string, current model.Status) error {
	next, token := s.beginToggle(id, current)
	return s.settleToggle(ctx, id, next, token)
}

func (s *TaskService) ToggleCompleteAsync(ctx context.Context, id string, current model.Status) error {
	next, token := s.beginToggle(id, current)
	return s.dispatch("toggle", id, token, func(ctx context.Context) error {
		return s.settleToggle(ctx, id, next, token)
	})
}

func (s *TaskService) beginDelete(ctx context.Context, id string) (uint64, error) {
	if s.confirmer == nil || !s.confirmer.Confirm(ctx, deletePrompt) {
		return 0, ErrNotConfirmed
	}
	return s.overlay.Apply(id, overlay.Tombstone()), nil
}

func (s *TaskService) settleDelete(ctx context.Context, id string, token uint64) error {
	if err := s.gateway.Delete(ctx, id); err != nil {
		s.overlay.Release(id, token)
		s.notifier.Error(gateway.Message(err, msgDeleteFailed))
		s.logger.Warn("delete task failed", zap.String("task_id", id), zap.Error(err))
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	s.confirm(id, token)
	s.notifier.Success(msgDeleted)
	s.logger.Info("task deleted", zap.String("task_id", id))
	return nil
}

func (s *TaskService) beginToggle(id string, current model.Status) (model.Status, uint64) {
	next := current.Opposite()
	return next, s.overlay.Apply(id, overlay.ToggleTo(next))
}

func (s *TaskService) settleToggle(ctx context.Context, id string, next model.Status, token uint64) error {
	if _, err := s.gateway.Update(ctx, id, model.Patch{Status: &next}); err != nil {
		// Report first, then let the row fall back to the cached status.
		s.notifier.Error(gateway.Message(err, msgToggleFailed))
		s.overlay.Release(id, token)
		s.logger.Warn("toggle task failed", zap.String("task_id", id), zap.Error(err))
		return fmt.Errorf("toggle task %s: %w", id, err)
	}

	s.confirm(id, token)
	s.notifier.Success(msgToggled)
	s.logger.Info("task toggled", zap.String("task_id", id), zap.String("status", string(next)))
	return nil
}

// confirm invalidates the lists and keeps the entry showing until a page
// fetched after the invalidation replaces the one it was applied over.
func (s *TaskService) confirm(id string, token uint64) {
	s.cache.InvalidateTasks()
	s.overlay.Confirm(id, token, s.cache.Epoch())
}

func (s *TaskService) dispatch(name, id string, token uint64, run func(context.Context) error) error {
	job := worker.Job{Name: name, TaskID: id, Run: run}
	if s.dispatcher == nil {
		go run(context.Background())
		return nil
	}
	if err := s.dispatcher.Submit(job); err != nil {
		s.overlay.Release(id, token)
		return fmt.Errorf("dispatch %s %s: %w", name, id, err)
	}
	return nil
}

// Pending reports whether id has a delete or toggle in flight.
func (s *TaskService) Pending(id string) bool {
	return s.overlay.Pending(id)
}

func (s *TaskService) BeginCreate() {
	s.mu.Lock()
	s.session = EditSession{Open: true}
	s.mu.Unlock()
}

func (s *TaskService) BeginEdit(task model.Task) {
	s.mu.Lock()
	s.session = EditSession{Open: true, Task: &task}
	s.mu.Unlock()
}

func (s *TaskService) Session() EditSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *TaskService) CloseSession() {
	s.mu.Lock()
	s.session = EditSession{}
	s.mu.Unlock()
}

type confirmKey struct{}

// WithConfirmation marks ctx as carrying the user's acknowledgement of a
// destructive action. ContextConfirmer reads it.
func WithConfirmation(ctx context.Context, confirmed bool) context.Context {
	return context.WithValue(ctx, confirmKey{}, confirmed)
}

var ContextConfirmer = ConfirmFunc(func(ctx context.Context, _ string) bool {
	confirmed, _ := ctx.Value(confirmKey{}).(bool)
	return confirmed
})
