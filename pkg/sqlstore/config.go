package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ConfigValue is one runtime setting.
type ConfigValue struct {
	Key   string `db:"db_key"`
	Value string `db:"db_value"`
}

// GetConfig returns a configuration value and whether it is set.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	if e, ok := s.config.Get(key); ok {
		return e.value, e.found, nil
	}
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT db_value FROM config_values WHERE db_key = ?`, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.config.Set(key, configEntry{}, configTTL)
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("sqlstore: get config %q: %w", key, err)
	}
	s.config.Set(key, configEntry{value: value, found: true}, configTTL)
	return value, true, nil
}

// SetConfig stores a configuration value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO config_values (db_key, db_value) VALUES (?, ?)
		ON CONFLICT (db_key) DO UPDATE SET db_value = excluded.db_value`, key, value)
	s.config.Invalidate(key)
	if err != nil {
		return fmt.Errorf("sqlstore: set config %q: %w", key, err)
	}
	return nil
}

// DeleteConfig removes a configuration value.
func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM config_values WHERE db_key = ?`, key)
	s.config.Invalidate(key)
	if err != nil {
		return fmt.Errorf("sqlstore: delete config %q: %w", key, err)
	}
	return nil
}

// ListConfig returns every configuration value ordered by key.
func (s *Store) ListConfig(ctx context.Context) ([]ConfigValue, error) {
	var out []ConfigValue
	if err := s.db.SelectContext(ctx, &out, `SELECT db_key, db_value FROM config_values ORDER BY db_key`); err != nil {
		return nil, fmt.Errorf("sqlstore: list config: %w", err)
	}
	return out, nil
}
