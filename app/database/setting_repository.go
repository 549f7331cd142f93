package database

import (
	"database/sql"
	"fmt"
)

type settingRepository struct {
	db *DB
}

// NewSettingRepository creates a new setting repository
func NewSettingRepository(db *DB) SettingRepository {
	return &settingRepository{db: db}
}

// GetSetting returns the stored value for key, or "" when the key is absent.
func (r *settingRepository) GetSetting(key string) (string, error) {
	var value string
	err := r.db.conn().QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (r *settingRepository) SetSetting(key, value string) error {
	_, err := r.db.conn().Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (r *settingRepository) AllSettings() (map[string]string, error) {
	rows, err := r.db.conn().Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating setting rows: %w", err)
	}

	return settings, nil
}
