package database

import (
	"database/sql"
	"fmt"
	"strings"
)

type taskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = "id, source_id, status, items_found, items_new, error, started_at, completed_at, created_at"

func scanTask(scan func(...any) error) (*Task, error) {
	var t Task
	var errMsg, startedAt, completedAt sql.NullString
	var createdAt string

	err := scan(&t.ID, &t.SourceID, &t.Status, &t.ItemsFound, &t.ItemsNew,
		&errMsg, &startedAt, &completedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	t.Error = errMsg.String
	t.StartedAt = scanTime(startedAt)
	t.CompletedAt = scanTime(completedAt)
	if ts, err := parseTime(createdAt); err == nil {
		t.CreatedAt = ts
	}

	return &t, nil
}

func (r *taskRepository) CreateTask(sourceID int64) (*Task, error) {
	result, err := r.db.conn().Exec("INSERT INTO tasks (source_id) VALUES (?)", sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get inserted task id: %w", err)
	}

	return r.GetTask(id)
}

func (r *taskRepository) GetTask(id int64) (*Task, error) {
	row := r.db.conn().QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)

	task, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (r *taskRepository) UpdateTask(id int64, update TaskUpdate) error {
	var fields []string
	var values []any

	if update.Status != nil {
		fields = append(fields, "status = ?")
		values = append(values, *update.Status)
	}
	if update.ItemsFound != nil {
		fields = append(fields, "items_found = ?")
		values = append(values, *update.ItemsFound)
	}
	if update.ItemsNew != nil {
		fields = append(fields, "items_new = ?")
		values = append(values, *update.ItemsNew)
	}
	if update.Error != nil {
		fields = append(fields, "error = ?")
		values = append(values, *update.Error)
	}
	if update.StartedAt != nil {
		fields = append(fields, "started_at = ?")
		values = append(values, formatTime(*update.StartedAt))
	}
	if update.CompletedAt != nil {
		fields = append(fields, "completed_at = ?")
		values = append(values, formatTime(*update.CompletedAt))
	}

	if len(fields) == 0 {
		return nil
	}

	values = append(values, id)
	_, err := r.db.conn().Exec("UPDATE tasks SET "+strings.Join(fields, ", ")+" WHERE id = ?", values...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

func (r *taskRepository) ListTasks(sourceID *int64) ([]Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks"
	var values []any
	if sourceID != nil {
		query += " WHERE source_id = ?"
		values = append(values, *sourceID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.conn().Query(query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}
