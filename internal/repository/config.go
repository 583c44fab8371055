// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors for repository operations.
var (
	ErrDocumentNotFound = errors.New("document not found")
)

// Logical collections of the config document store. Each entity kind
// keeps its own namespace; they never share documents.
const (
	CollectionBotConfig   = "bot_config"
	CollectionGroupConfig = "group_config"
	CollectionUserConfig  = "user_config"
)

// ConfigRepository is a generic document store over a single JSONB table.
// Documents are keyed by (collection, entity_id) and merged shallowly on
// upsert, so callers can persist a partial update without reading first.
type ConfigRepository struct {
	pool *pgxpool.Pool
}

// NewConfigRepository creates a new ConfigRepository instance.
func NewConfigRepository(pool *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

// FindDocument retrieves the raw JSON document for an entity.
// Returns ErrDocumentNotFound if no document exists.
func (r *ConfigRepository) FindDocument(ctx context.Context, collection string, entityID int64) ([]byte, error) {
	const query = `
		SELECT data
		FROM configs
		WHERE collection = $1 AND entity_id = $2
	`

	var data []byte
	err := r.pool.QueryRow(ctx, query, collection, entityID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	return data, nil
}

// Upsert creates the document if absent and otherwise merges the patch
// into it. The merge is shallow: top-level keys in patch replace the
// stored ones, everything else is preserved.
func (r *ConfigRepository) Upsert(ctx context.Context, collection string, entityID int64, patch map[string]any) error {
	const query = `
		INSERT INTO configs (collection, entity_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (collection, entity_id)
		DO UPDATE SET data = configs.data || EXCLUDED.data, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, collection, entityID, patch); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	return nil
}

// AppendValue appends a value to a JSON array field of the document,
// creating the document and the array as needed. Duplicates are not
// filtered; callers that need set semantics must dedupe themselves.
func (r *ConfigRepository) AppendValue(ctx context.Context, collection string, entityID int64, key string, value int64) error {
	const query = `
		INSERT INTO configs (collection, entity_id, data, created_at, updated_at)
		VALUES ($1, $2, jsonb_build_object($3::text, jsonb_build_array($4::bigint)), NOW(), NOW())
		ON CONFLICT (collection, entity_id)
		DO UPDATE SET
			data = jsonb_set(
				configs.data,
				ARRAY[$3::text],
				COALESCE(configs.data -> $3::text, '[]'::jsonb) || to_jsonb($4::bigint)
			),
			updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, collection, entityID, key, value); err != nil {
		return fmt.Errorf("failed to append value: %w", err)
	}

	return nil
}
