package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync-client/internal/gateway"
	"github.com/BuzzLyutic/task-sync-client/internal/model"
	"github.com/BuzzLyutic/task-sync-client/internal/notify"
	"github.com/BuzzLyutic/task-sync-client/internal/overlay"
	"github.com/BuzzLyutic/task-sync-client/internal/worker"
)

// MockGateway - gateway mock
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) List(ctx context.Context, f model.TaskFilter) (model.Page, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(model.Page), args.Error(1)
}

func (m *MockGateway) Create(ctx context.Context, d model.Draft) (model.Task, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockGateway) Update(ctx context.Context, id string, p model.Patch) (model.Task, error) {
	args := m.Called(ctx, id, p)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockGateway) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type countingCache struct {
	n atomic.Int32
}

func (c *countingCache) InvalidateTasks() int {
	c.n.Add(1)
	return 1
}

func (c *countingCache) Epoch() uint64 {
	return uint64(c.n.Load())
}

type fixture struct {
	gw      *MockGateway
	cache   *countingCache
	overlay *overlay.Overlay
	queue   *notify.Queue
	svc     *TaskService
}

func newFixture(confirm bool, dispatcher Dispatcher) *fixture {
	f := &fixture{
		gw:      new(MockGateway),
		cache:   &countingCache{},
		overlay: overlay.New(),
		queue:   notify.NewQueue(),
	}
	confirmer := ConfirmFunc(func(context.Context, string) bool { return confirm })
	f.svc = NewTaskService(f.gw, f.cache, f.overlay, f.queue, confirmer, dispatcher, zap.NewNop())
	return f
}

func (f *fixture) lastNotification(t *testing.T) model.Notification {
	t.Helper()
	items := f.queue.Items()
	require.NotEmpty(t, items)
	return items[len(items)-1]
}

var due = time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

func TestTaskService_Create(t *testing.T) {
	tests := []struct {
		name       string
		draft      model.Draft
		setupMock  func(*MockGateway)
		wantErr    error
		wantFields []string
		wantKind   model.NotificationKind
		wantMsg    string
	}{
		{
			name:  "successful creation",
			draft: model.Draft{Title: "Write report", DueDate: due, Priority: model.PriorityHigh},
			setupMock: func(m *MockGateway) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(d model.Draft) bool {
					return d.Title == "Write report"
				})).Return(model.Task{ID: "t1", Title: "Write report"}, nil)
			},
			wantKind: model.KindSuccess,
			wantMsg:  "Task created successfully!",
		},
		{
			name:       "validation error - empty title",
			draft:      model.Draft{Title: "   ", DueDate: due},
			setupMock:  func(m *MockGateway) {},
			wantErr:    ErrValidation,
			wantFields: []string{"title"},
		},
		{
			name:       "validation error - missing due date and long description",
			draft:      model.Draft{Title: "x", Description: strings.Repeat("a", 1001)},
			setupMock:  func(m *MockGateway) {},
			wantErr:    ErrValidation,
			wantFields: []string{"description", "dueDate"},
		},
		{
			name:  "gateway error with message",
			draft: model.Draft{Title: "Write report", DueDate: due},
			setupMock: func(m *MockGateway) {
				m.On("Create", mock.Anything, mock.Anything).
					Return(model.Task{}, &gateway.Error{Status: http.StatusBadRequest, Message: "Title too short"})
			},
			wantKind: model.KindError,
			wantMsg:  "Title too short",
		},
		{
			name:  "gateway error without message",
			draft: model.Draft{Title: "Write report", DueDate: due},
			setupMock: func(m *MockGateway) {
				m.On("Create", mock.Anything, mock.Anything).
					Return(model.Task{}, &gateway.Error{Err: errors.New("connection refused")})
			},
			wantKind: model.KindError,
			wantMsg:  "Failed to save task",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(true, nil)
			tt.setupMock(f.gw)
			f.svc.BeginCreate()

			task, err := f.svc.Create(context.Background(), tt.draft)

			switch {
			case tt.wantErr == ErrValidation:
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.ErrorIs(t, err, ErrValidation)
				for _, field := range tt.wantFields {
					assert.Contains(t, vErr.Fields, field)
				}
				assert.Len(t, vErr.Fields, len(tt.wantFields))
				assert.Empty(t, f.queue.Items(), "validation errors are not notifications")
				assert.True(t, f.svc.Session().Open)
				f.gw.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			case tt.wantKind == model.KindError:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrValidation)
				assert.True(t, f.svc.Session().Open, "form stays open for correction")
				assert.Zero(t, f.cache.n.Load())
			default:
				require.NoError(t, err)
				assert.Equal(t, "t1", task.ID)
				assert.False(t, f.svc.Session().Open)
				assert.Equal(t, int32(1), f.cache.n.Load())
			}

			if tt.wantKind != "" {
				n := f.lastNotification(t)
				assert.Equal(t, tt.wantKind, n.Kind)
				assert.Equal(t, tt.wantMsg, n.Message)
			}
			f.gw.AssertExpectations(t)
		})
	}
}

func TestTaskService_Update(t *testing.T) {
	title := "Updated"

	t.Run("success", func(t *testing.T) {
		f := newFixture(true, nil)
		f.gw.On("Update", mock.Anything, "t1", mock.MatchedBy(func(p model.Patch) bool {
			return *p.Title == "Updated"
		})).Return(model.Task{ID: "t1", Title: "Updated"}, nil)
		f.svc.BeginEdit(model.Task{ID: "t1", Title: "Original"})

		task, err := f.svc.Update(context.Background(), "t1", model.Patch{Title: &title, DueDate: &due})
		require.NoError(t, err)
		assert.Equal(t, "Updated", task.Title)
		assert.False(t, f.svc.Session().Open)
		assert.Equal(t, "Task updated successfully!", f.lastNotification(t).Message)
		f.gw.AssertExpectations(t)
	})

	t.Run("missing due date", func(t *testing.T) {
		f := newFixture(true, nil)
		_, err := f.svc.Update(context.Background(), "t1", model.Patch{Title: &title})
		assert.ErrorIs(t, err, ErrValidation)
		f.gw.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("gateway failure keeps session", func(t *testing.T) {
		f := newFixture(true, nil)
		f.gw.On("Update", mock.Anything, "t1", mock.Anything).
			Return(model.Task{}, &gateway.Error{Status: http.StatusNotFound, Message: "Task not found"})
		f.svc.BeginEdit(model.Task{ID: "t1"})

		_, err := f.svc.Update(context.Background(), "t1", model.Patch{Title: &title, DueDate: &due})
		assert.ErrorIs(t, err, gateway.ErrNotFound)
		assert.True(t, f.svc.Session().Open)
		assert.Equal(t, "Task not found", f.lastNotification(t).Message)
	})
}

func TestTaskService_Delete(t *testing.T) {
	t.Run("not confirmed", func(t *testing.T) {
		f := newFixture(false, nil)
		err := f.svc.Delete(context.Background(), "t1")
		assert.ErrorIs(t, err, ErrNotConfirmed)
		assert.False(t, f.overlay.Pending("t1"))
		assert.Empty(t, f.queue.Items())
		f.gw.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("tombstone applied before the gateway answers", func(t *testing.T) {
		f := newFixture(true, nil)
		f.gw.On("Delete", mock.Anything, "t1").Run(func(mock.Arguments) {
			e, ok := f.overlay.Get("t1")
			assert.True(t, ok)
			assert.Equal(t, overlay.KindTombstone, e.Kind)
		}).Return(nil)

		require.NoError(t, f.svc.Delete(context.Background(), "t1"))
		assert.False(t, f.overlay.Pending("t1"))
		assert.Equal(t, int32(1), f.cache.n.Load())

		// Stays hidden until a page from after the invalidation lands.
		e, ok := f.overlay.Get("t1")
		require.True(t, ok)
		assert.Equal(t, overlay.KindTombstone, e.Kind)
		assert.Zero(t, f.overlay.Settle(0))
		assert.Equal(t, 1, f.overlay.Settle(1))
		assert.Equal(t, "Task deleted successfully!", f.lastNotification(t).Message)
	})

	t.Run("failure rolls back", func(t *testing.T) {
		f := newFixture(true, nil)
		f.gw.On("Delete", mock.Anything, "t1").Return(&gateway.Error{Status: http.StatusInternalServerError})

		err := f.svc.Delete(context.Background(), "t1")
		require.Error(t, err)
		assert.False(t, f.overlay.Pending("t1"))
		assert.Zero(t, f.cache.n.Load())

		n := f.lastNotification(t)
		assert.Equal(t, model.KindError, n.Kind)
		assert.Equal(t, "Failed to delete task", n.Message)
		f.gw.AssertNumberOfCalls(t, "Delete", 1)
	})
}

func TestTaskService_ToggleComplete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(true, nil)
		f.gw.On("Update", mock.Anything, "t1", mock.MatchedBy(func(p model.Patch) bool {
			return p.Status != nil && *p.Status == model.StatusCompleted && p.Title == nil
		})).Run(func(mock.Arguments) {
			e, _ := f.overlay.Get("t1")
			assert.Equal(t, overlay.ToggleTo(model.StatusCompleted), e)
		}).Return(model.Task{ID: "t1", Status: model.StatusCompleted}, nil)

		require.NoError(t, f.svc.ToggleComplete(context.Background(), "t1", model.StatusPending))
		assert.False(t, f.overlay.Pending("t1"))
		assert.Equal(t, int32(1), f.cache.n.Load())
		assert.Equal(t, "Task updated!", f.lastNotification(t).Message)
	})

	t.Run("failure reverts", func(t *testing.T) {
		f := newFixture(true, nil)
		f.gw.On("Update", mock.Anything, "t1", mock.Anything).
			Return(model.Task{}, &gateway.Error{Status: http.StatusBadRequest, Message: "Invalid status"})

		err := f.svc.ToggleComplete(context.Background(), "t1", model.StatusCompleted)
		require.Error(t, err)
		assert.False(t, f.overlay.Pending("t1"))
		assert.Equal(t, "Invalid status", f.lastNotification(t).Message)
	})
}

func TestTaskService_DeleteSupersedesToggle(t *testing.T) {
	f := newFixture(true, nil)
	toggleStarted := make(chan struct{})
	releaseToggle := make(chan struct{})

	f.gw.On("Update", mock.Anything, "t1", mock.Anything).Run(func(mock.Arguments) {
		close(toggleStarted)
		<-releaseToggle
	}).Return(model.Task{}, &gateway.Error{Status: http.StatusInternalServerError})

	deleteStarted := make(chan struct{})
	releaseDelete := make(chan struct{})
	f.gw.On("Delete", mock.Anything, "t1").Run(func(mock.Arguments) {
		close(deleteStarted)
		<-releaseDelete
	}).Return(nil)

	toggleDone := make(chan error, 1)
	go func() { toggleDone <- f.svc.ToggleComplete(context.Background(), "t1", model.StatusPending) }()
	<-toggleStarted

	deleteDone := make(chan error, 1)
	go func() { deleteDone <- f.svc.Delete(context.Background(), "t1") }()
	<-deleteStarted

	e, _ := f.overlay.Get("t1")
	assert.Equal(t, overlay.KindTombstone, e.Kind)

	// The toggle fails after the delete took over; the row must stay hidden.
	close(releaseToggle)
	require.Error(t, <-toggleDone)
	e, ok := f.overlay.Get("t1")
	require.True(t, ok)
	assert.Equal(t, overlay.KindTombstone, e.Kind)

	close(releaseDelete)
	require.NoError(t, <-deleteDone)
	assert.False(t, f.overlay.Pending("t1"))
}

func TestTaskService_Async(t *testing.T) {
	pool := worker.NewPool(zap.NewNop(), 2, 4)
	pool.Start(context.Background())

	f := newFixture(true, pool)
	release := make(chan struct{})
	f.gw.On("Delete", mock.Anything, "t1").Run(func(mock.Arguments) { <-release }).Return(nil)
	f.gw.On("Update", mock.Anything, "t2", mock.Anything).Run(func(mock.Arguments) { <-release }).
		Return(model.Task{ID: "t2", Status: model.StatusCompleted}, nil)

	require.NoError(t, f.svc.DeleteAsync(context.Background(), "t1"))
	require.NoError(t, f.svc.ToggleCompleteAsync(context.Background(), "t2", model.StatusPending))

	assert.True(t, f.svc.Pending("t1"))
	assert.True(t, f.svc.Pending("t2"))

	close(release)
	pool.Stop()

	assert.False(t, f.svc.Pending("t1"))
	assert.False(t, f.svc.Pending("t2"))
	assert.Len(t, f.queue.Items(), 2)
	f.gw.AssertExpectations(t)
}

func TestTaskService_AsyncAfterStop(t *testing.T) {
	pool := worker.NewPool(zap.NewNop(), 1, 0)
	pool.Start(context.Background())
	pool.Stop()

	f := newFixture(true, pool)
	err := f.svc.DeleteAsync(context.Background(), "t1")
	assert.ErrorIs(t, err, worker.ErrStopped)
	assert.False(t, f.overlay.Pending("t1"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		draft   model.Draft
		wantErr bool
	}{
		{name: "valid draft", draft: model.Draft{Title: "Valid", DueDate: due}},
		{name: "empty title", draft: model.Draft{DueDate: due}, wantErr: true},
		{name: "whitespace title", draft: model.Draft{Title: "   ", DueDate: due}, wantErr: true},
		{name: "missing due date", draft: model.Draft{Title: "Task"}, wantErr: true},
		{name: "description at limit", draft: model.Draft{Title: "Task", DueDate: due, Description: strings.Repeat("é", 1000)}},
		{name: "unknown priority", draft: model.Draft{Title: "Task", DueDate: due, Priority: "Urgent"}, wantErr: true},
		{name: "unknown status", draft: model.Draft{Title: "Task", DueDate: due, Status: "Doing"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDraft(tt.draft)
			if tt.wantErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"title": "Title is required", "dueDate": "Due date is required"}}
	assert.Equal(t, "validation error: dueDate: Due date is required; title: Title is required", err.Error())
}

func TestContextConfirmer(t *testing.T) {
	ctx := context.Background()
	assert.False(t, ContextConfirmer.Confirm(ctx, deletePrompt))
	assert.False(t, ContextConfirmer.Confirm(WithConfirmation(ctx, false), deletePrompt))
	assert.True(t, ContextConfirmer.Confirm(WithConfirmation(ctx, true), deletePrompt))
}
