package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BuzzLyutic/task-sync-client/internal/gateway"
	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

// TaskRepo serves the task gateway straight from Postgres, for running the
// client without the remote API.
type TaskRepo struct {
	db Querier
}

var _ gateway.Gateway = (*TaskRepo)(nil)

func NewTaskRepo(db Querier) *TaskRepo {
	return &TaskRepo{
		db: db,
	}
}

const taskColumns = `id, title, description, priority, status, due_date, created_at, updated_at`

func (r *TaskRepo) List(ctx context.Context, f model.TaskFilter) (model.Page, error) {
	status := nullable(string(f.Status))
	priority := nullable(string(f.Priority))
	search := nullable(f.Search)

	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tasks
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR priority = $2)
		  AND ($3::text IS NULL OR title ILIKE '%' || $3 || '%' OR description ILIKE '%' || $3 || '%')
	`, status, priority, search).Scan(&total)
	if err != nil {
		return model.Page{}, r.mapError(err)
	}

	pageSize := max(f.PageSize, 1)
	page := max(f.Page, 1)

	rows, err := r.db.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR priority = $2)
		  AND ($3::text IS NULL OR title ILIKE '%' || $3 || '%' OR description ILIKE '%' || $3 || '%')
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, status, priority, search, pageSize, (page-1)*pageSize)
	if err != nil {
		return model.Page{}, r.mapError(err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, pageSize)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return model.Page{}, r.mapError(err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return model.Page{}, r.mapError(err)
	}

	return model.Page{
		Items:      tasks,
		Page:       page,
		TotalPages: (total + pageSize - 1) / pageSize,
		TotalItems: total,
	}, nil
}

func (r *TaskRepo) Create(ctx context.Context, d model.Draft) (model.Task, error) {
	priority := d.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	status := d.Status
	if status == "" {
		status = model.StatusPending
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO tasks (title, description, priority, status, due_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+taskColumns,
		d.Title, d.Description, string(priority), string(status), d.DueDate)

	t, err := scanTask(row)
	return t, r.mapError(err)
}

func (r *TaskRepo) Update(ctx context.Context, id string, p model.Patch) (model.Task, error) {
	key, ok := parseID(id)
	if !ok {
		return model.Task{}, notFound()
	}

	row := r.db.QueryRow(ctx, `
		UPDATE tasks
		SET title       = COALESCE($2, title),
		    description = COALESCE($3, description),
		    priority    = COALESCE($4, priority),
		    status      = COALESCE($5, status),
		    due_date    = COALESCE($6, due_date),
		    updated_at  = now()
		WHERE id = $1
		RETURNING `+taskColumns,
		key, p.Title, p.Description, (*string)(p.Priority), (*string)(p.Status), p.DueDate)

	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, notFound()
	}
	return t, r.mapError(err)
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	key, ok := parseID(id)
	if !ok {
		return notFound()
	}

	cmd, err := r.db.Exec(ctx, "DELETE FROM tasks WHERE id = $1", key)
	if err != nil {
		return r.mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound()
	}
	return nil
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		t        model.Task
		id       int64
		priority string
		status   string
	)
	err := row.Scan(&id, &t.Title, &t.Description, &priority, &status, &t.DueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Task{}, err
	}
	t.ID = strconv.FormatInt(id, 10)
	t.Priority = model.Priority(priority)
	t.Status = model.Status(status)
	return t, nil
}

// mapError turns database failures into gateway errors so callers see the
// same taxonomy as with the remote API.
func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &gateway.Error{Status: http.StatusConflict, Message: "Task already exists", Err: err}
		case "23514", "23502", "22001":
			return &gateway.Error{
				Status:  http.StatusBadRequest,
				Message: "Validation failed",
				Fields:  []gateway.FieldError{{Field: columnField(pgErr.ColumnName), Message: pgErr.Message}},
				Err:     err,
			}
		}
	}
	return &gateway.Error{Status: http.StatusInternalServerError, Err: fmt.Errorf("postgres: %w", err)}
}

func columnField(column string) string {
	switch column {
	case "due_date":
		return "dueDate"
	default:
		return column
	}
}

func parseID(id string) (int64, bool) {
	key, err := strconv.ParseInt(id, 10, 64)
	return key, err == nil
}

func notFound() error {
	return &gateway.Error{Status: http.StatusNotFound, Message: "Task not found"}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
