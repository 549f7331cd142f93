package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type sourceRepository struct {
	db *DB
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *DB) SourceRepository {
	return &sourceRepository{db: db}
}

const sourceColumns = "id, name, type, config, is_active, last_collected_at, last_error, created_at"

func scanSource(scan func(...any) error) (*Source, error) {
	var s Source
	var configJSON string
	var isActive int
	var lastCollected, lastError sql.NullString
	var createdAt string

	err := scan(&s.ID, &s.Name, &s.Type, &configJSON, &isActive, &lastCollected, &lastError, &createdAt)
	if err != nil {
		return nil, err
	}

	s.IsActive = isActive != 0
	s.LastCollectedAt = scanTime(lastCollected)
	s.LastError = lastError.String
	if t, err := parseTime(createdAt); err == nil {
		s.CreatedAt = t
	}

	s.Config = make(map[string]any)
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &s.Config); err != nil {
			return nil, fmt.Errorf("failed to decode source config: %w", err)
		}
	}

	return &s, nil
}

func (r *sourceRepository) GetSource(id int64) (*Source, error) {
	row := r.db.conn().QueryRow("SELECT "+sourceColumns+" FROM sources WHERE id = ?", id)

	source, err := scanSource(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return source, nil
}

func (r *sourceRepository) ListSources(activeOnly bool) ([]Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.conn().Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

func (r *sourceRepository) CreateSource(name, sourceType string, config map[string]any, isActive bool) (*Source, error) {
	if config == nil {
		config = map[string]any{}
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source config: %w", err)
	}

	active := 0
	if isActive {
		active = 1
	}

	result, err := r.db.conn().Exec(
		"INSERT INTO sources (name, type, config, is_active) VALUES (?, ?, ?, ?)",
		name, sourceType, string(configJSON), active)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get inserted source id: %w", err)
	}

	return r.GetSource(id)
}

func (r *sourceRepository) UpdateSource(id int64, update SourceUpdate) (*Source, error) {
	var fields []string
	var values []any

	if update.Name != nil {
		fields = append(fields, "name = ?")
		values = append(values, *update.Name)
	}
	if update.Type != nil {
		fields = append(fields, "type = ?")
		values = append(values, *update.Type)
	}
	if update.Config != nil {
		configJSON, err := json.Marshal(update.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to encode source config: %w", err)
		}
		fields = append(fields, "config = ?")
		values = append(values, string(configJSON))
	}
	if update.IsActive != nil {
		active := 0
		if *update.IsActive {
			active = 1
		}
		fields = append(fields, "is_active = ?")
		values = append(values, active)
	}

	if len(fields) == 0 {
		return r.GetSource(id)
	}

	values = append(values, id)
	_, err := r.db.conn().Exec("UPDATE sources SET "+strings.Join(fields, ", ")+" WHERE id = ?", values...)
	if err != nil {
		return nil, fmt.Errorf("failed to update source: %w", err)
	}

	return r.GetSource(id)
}

func (r *sourceRepository) DeleteSource(id int64) (bool, error) {
	result, err := r.db.conn().Exec("DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *sourceRepository) MarkCollected(id int64, at time.Time) error {
	_, err := r.db.conn().Exec(
		"UPDATE sources SET last_collected_at = ?, last_error = NULL WHERE id = ?",
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark source collected: %w", err)
	}
	return nil
}

func (r *sourceRepository) SetLastError(id int64, msg string) error {
	_, err := r.db.conn().Exec("UPDATE sources SET last_error = ? WHERE id = ?", msg, id)
	if err != nil {
		return fmt.Errorf("failed to set source error: %w", err)
	}
	return nil
}
