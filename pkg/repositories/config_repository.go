package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/qbank-labs/question-engine/pkg/apperrors"
	"github.com/qbank-labs/question-engine/pkg/database"
)

// ConfigRepository reads and writes system_config key/value pairs. Provider
// credentials and prompt templates live here so operators can change them
// without a redeploy.
type ConfigRepository interface {
	// Get returns the value for key, or apperrors.ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Values returns the values for the given keys. Missing keys are
	// returned as empty strings rather than errors.
	Values(ctx context.Context, keys ...string) (map[string]string, error)

	Set(ctx context.Context, key, value string) error
}

type configRepository struct {
	db *database.DB
}

// NewConfigRepository creates a new ConfigRepository.
func NewConfigRepository(db *database.DB) ConfigRepository {
	return &configRepository{db: db}
}

var _ ConfigRepository = (*configRepository)(nil)

func (r *configRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM system_config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("get config %q: %w", key, err)
	}
	return value, nil
}

func (r *configRepository) Values(ctx context.Context, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		values[key] = ""
	}

	rows, err := r.db.Query(ctx, `SELECT key, value FROM system_config WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("get config values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config rows: %w", err)
	}
	return values, nil
}

func (r *configRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO system_config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}
