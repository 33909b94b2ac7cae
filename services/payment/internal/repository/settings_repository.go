package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// SettingsRepository reads the key-value settings table. It satisfies config.Provider.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a settings repository
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the stored values for keys; absent keys are omitted
func (r *SettingsRepository) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	query := `SELECT key, value FROM settings WHERE key = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		values[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	return values, nil
}
