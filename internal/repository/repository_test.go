// Tests use testcontainers-go to spin up a PostgreSQL container and are
// skipped when Docker is unavailable.
package repository

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"group-roulette-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runTestMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runTestMigrations creates the schema the repositories expect.
func runTestMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS configs (
			collection VARCHAR(50) NOT NULL,
			entity_id BIGINT NOT NULL,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, entity_id)
		);
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS group_messages (
			id BIGSERIAL PRIMARY KEY,
			bot_id BIGINT NOT NULL,
			group_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func TestConfigRepository_FindDocumentNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewConfigRepository(pool)

	_, err := repo.FindDocument(context.Background(), CollectionBotConfig, 1)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestConfigRepository_UpsertMergesShallowly(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewConfigRepository(pool)

	require.NoError(t, repo.Upsert(ctx, CollectionBotConfig, 1, map[string]any{"security": true}))
	require.NoError(t, repo.Upsert(ctx, CollectionBotConfig, 1, map[string]any{"auto_accept": true}))

	data, err := repo.FindDocument(ctx, CollectionBotConfig, 1)
	require.NoError(t, err)

	var doc model.BotConfig
	require.NoError(t, json.Unmarshal(data, &doc))

	// Both patches survive; the second merge did not clobber the first.
	assert.True(t, doc.Security)
	assert.True(t, doc.AutoAccept)
}

func TestConfigRepository_UpsertReplacesTopLevelKeys(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewConfigRepository(pool)

	require.NoError(t, repo.Upsert(ctx, CollectionGroupConfig, 10, map[string]any{"roulette_mode": 1}))
	require.NoError(t, repo.Upsert(ctx, CollectionGroupConfig, 10, map[string]any{"roulette_mode": 0}))

	data, err := repo.FindDocument(ctx, CollectionGroupConfig, 10)
	require.NoError(t, err)

	var doc model.GroupConfig
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, model.ModeKick, doc.RouletteMode)
}

func TestConfigRepository_CollectionsAreIsolated(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewConfigRepository(pool)

	require.NoError(t, repo.Upsert(ctx, CollectionGroupConfig, 1, map[string]any{"banned": true}))

	_, err := repo.FindDocument(ctx, CollectionUserConfig, 1)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestConfigRepository_AppendValue(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewConfigRepository(pool)

	// Appending to a missing document creates it.
	require.NoError(t, repo.AppendValue(ctx, CollectionBotConfig, 1, "admins", 100))
	require.NoError(t, repo.AppendValue(ctx, CollectionBotConfig, 1, "admins", 200))

	data, err := repo.FindDocument(ctx, CollectionBotConfig, 1)
	require.NoError(t, err)

	var doc model.BotConfig
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []int64{100, 200}, doc.Admins)
}

func TestConfigRepository_AppendValuePreservesSiblings(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewConfigRepository(pool)

	require.NoError(t, repo.Upsert(ctx, CollectionBotConfig, 1, map[string]any{"security": true}))
	require.NoError(t, repo.AppendValue(ctx, CollectionBotConfig, 1, "admins", 100))

	data, err := repo.FindDocument(ctx, CollectionBotConfig, 1)
	require.NoError(t, err)

	var doc model.BotConfig
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.True(t, doc.Security)
	assert.Equal(t, []int64{100}, doc.Admins)
}

func TestMessageRepository_RandomPerGroup(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewMessageRepository(pool)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, model.GroupMessage{BotID: 1, GroupID: 10, UserID: int64(i), Text: "hi"}))
	}
	require.NoError(t, repo.Record(ctx, model.GroupMessage{BotID: 1, GroupID: 20, UserID: 99, Text: "yo"}))

	sample, err := repo.RandomPerGroup(ctx)
	require.NoError(t, err)

	// Exactly one message per group.
	require.Len(t, sample, 2)
	assert.Equal(t, int64(10), sample[10].GroupID)
	assert.Equal(t, int64(99), sample[20].UserID)
	assert.Equal(t, "yo", sample[20].Text)
}

func TestMessageRepository_Prune(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewMessageRepository(pool)

	require.NoError(t, repo.Record(ctx, model.GroupMessage{BotID: 1, GroupID: 10, UserID: 1, Text: "recent"}))

	// Backdate one row past the retention window.
	_, err := pool.Exec(ctx, `
		INSERT INTO group_messages (bot_id, group_id, user_id, content, created_at)
		VALUES (1, 10, 2, 'old', NOW() - INTERVAL '40 days')
	`)
	require.NoError(t, err)

	deleted, err := repo.Prune(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
