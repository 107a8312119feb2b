package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

// Gateway is the remote task API the client synchronizes against.
// Implementations do not retry.
type Gateway interface {
	List(ctx context.Context, filter model.TaskFilter) (model.Page, error)
	Create(ctx context.Context, draft model.Draft) (model.Task, error)
	Update(ctx context.Context, id string, patch model.Patch) (model.Task, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// FieldError is a backend validation failure tied to one form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a failed gateway call. Status is zero when the request never got
// a response.
type Error struct {
	Status  int
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("gateway: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("gateway: status %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("gateway: status %d", e.Status)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is maps HTTP statuses onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

// FieldErrors returns the backend field errors keyed by field name, or nil.
func (e *Error) FieldErrors() map[string]string {
	if len(e.Fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			continue
		}
		out[f.Field] = f.Message
	}
	return out
}

// Message returns the server supplied message of err, or fallback when err
// carries none.
func Message(err error, fallback string) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return fallback
}
