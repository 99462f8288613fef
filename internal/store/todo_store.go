package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/task-reminders/internal/model"
)

// todoColumns is the column list every todo query selects.
const todoColumns = "id, user_id, title, due_date, is_completed, created_at, updated_at"

// CreateTodo inserts a new todo. Generates a UUID if ID is empty. The due
// date is stored as its calendar date.
func (s *SQLiteStore) CreateTodo(ctx context.Context, todo model.Todo) (model.Todo, error) {
	if strings.TrimSpace(todo.Title) == "" {
		return model.Todo{}, fmt.Errorf("todo title must not be empty")
	}
	if todo.UserID == "" {
		return model.Todo{}, fmt.Errorf("todo user must not be empty")
	}
	if todo.ID == "" {
		todo.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	todo.DueDate = model.CalendarDatePtr(todo.DueDate)
	todo.CreatedAt = now
	todo.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (`+todoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		todo.ID, todo.UserID, todo.Title, todo.DueDate,
		boolToInt(todo.Completed), todo.CreatedAt, todo.UpdatedAt,
	)
	if err != nil {
		return model.Todo{}, wrapErr("creating todo", err)
	}
	return todo, nil
}

// UpdateTodo updates an existing todo by ID.
func (s *SQLiteStore) UpdateTodo(ctx context.Context, todo model.Todo) error {
	if strings.TrimSpace(todo.Title) == "" {
		return fmt.Errorf("todo title must not be empty")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE todos SET
			title = ?, due_date = ?, is_completed = ?, updated_at = ?
		WHERE id = ?`,
		todo.Title, model.CalendarDatePtr(todo.DueDate), boolToInt(todo.Completed),
		time.Now().UTC(), todo.ID,
	)
	if err != nil {
		return wrapErr(fmt.Sprintf("updating todo %s", todo.ID), err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("todo %s: %w", todo.ID, model.ErrNotFound)
	}
	return nil
}

// SaveTodo inserts the todo or replaces the stored copy with the same ID.
// It records tasks reported by an external task subsystem, so the ID and
// owner come from the caller.
func (s *SQLiteStore) SaveTodo(ctx context.Context, todo model.Todo) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (`+todoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			due_date = excluded.due_date,
			is_completed = excluded.is_completed,
			updated_at = excluded.updated_at`,
		todo.ID, todo.UserID, todo.Title, model.CalendarDatePtr(todo.DueDate),
		boolToInt(todo.Completed), now, now,
	)
	if err != nil {
		return wrapErr(fmt.Sprintf("saving todo %s", todo.ID), err)
	}
	return nil
}

// DeleteTodo removes a todo by ID.
func (s *SQLiteStore) DeleteTodo(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", id)
	if err != nil {
		return wrapErr(fmt.Sprintf("deleting todo %s", id), err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("todo %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// GetTodoByID retrieves a single todo by ID.
func (s *SQLiteStore) GetTodoByID(
	ctx context.Context,
	id string,
) (*model.Todo, error) {
	var todo model.Todo
	err := s.db.GetContext(ctx, &todo,
		"SELECT "+todoColumns+" FROM todos WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("todo %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("getting todo %s", id), err)
	}
	return &todo, nil
}

// EligibleTodos returns every incomplete todo with a due date, grouped by
// user so callers can batch per user.
func (s *SQLiteStore) EligibleTodos(ctx context.Context) ([]model.Todo, error) {
	completed := false
	hasDue := true
	return s.GetTodos(ctx, TodoFilter{Completed: &completed, HasDue: &hasDue})
}

// GetTodos retrieves todos matching the filter, ordered by user then due date.
func (s *SQLiteStore) GetTodos(
	ctx context.Context,
	filter TodoFilter,
) ([]model.Todo, error) {
	query, args := buildTodoQuery(filter, time.Now())

	var todos []model.Todo
	if err := s.db.SelectContext(ctx, &todos, query, args...); err != nil {
		return nil, wrapErr("querying todos", err)
	}
	return todos, nil
}

// buildTodoQuery constructs the SQL query and args for a TodoFilter.
func buildTodoQuery(filter TodoFilter, now time.Time) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Completed != nil {
		conditions = append(conditions, "is_completed = ?")
		args = append(args, boolToInt(*filter.Completed))
	}
	if filter.HasDue != nil {
		if *filter.HasDue {
			conditions = append(conditions, "due_date IS NOT NULL")
		} else {
			conditions = append(conditions, "due_date IS NULL")
		}
	}
	if filter.DueDate != nil {
		today := now.Format("2006-01-02")
		switch *filter.DueDate {
		case "today":
			tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
			conditions = append(conditions, "due_date >= ? AND due_date < ?")
			args = append(args, today, tomorrow)
		case "upcoming":
			weekFromNow := now.AddDate(0, 0, 7).Format("2006-01-02")
			conditions = append(conditions, "due_date >= ? AND due_date < ?")
			args = append(args, today, weekFromNow)
		case "overdue":
			conditions = append(conditions, "due_date < ? AND is_completed = 0")
			args = append(args, today)
		}
	}

	query := "SELECT " + todoColumns + " FROM todos"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY user_id, due_date, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return query, args
}
