package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"group-roulette-bot/internal/model"
)

// MessageRepository records inbound group messages. The name-stealing
// job samples them to pick a member to imitate.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository instance.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Record stores one inbound group message.
func (r *MessageRepository) Record(ctx context.Context, msg model.GroupMessage) error {
	const query = `
		INSERT INTO group_messages (bot_id, group_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	if _, err := r.pool.Exec(ctx, query, msg.BotID, msg.GroupID, msg.UserID, msg.Text); err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}

	return nil
}

// RandomPerGroup returns one uniformly random recorded message per group.
func (r *MessageRepository) RandomPerGroup(ctx context.Context) (map[int64]model.GroupMessage, error) {
	const query = `
		SELECT DISTINCT ON (group_id) bot_id, group_id, user_id, content
		FROM group_messages
		ORDER BY group_id, random()
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to sample messages: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]model.GroupMessage)
	for rows.Next() {
		var msg model.GroupMessage
		if err := rows.Scan(&msg.BotID, &msg.GroupID, &msg.UserID, &msg.Text); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		result[msg.GroupID] = msg
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return result, nil
}

// Prune deletes messages older than the retention window, keeping the
// sampling table small.
func (r *MessageRepository) Prune(ctx context.Context, keepDays int) (int64, error) {
	const query = `
		DELETE FROM group_messages
		WHERE created_at < NOW() - ($1 || ' days')::interval
	`

	tag, err := r.pool.Exec(ctx, query, keepDays)
	if err != nil {
		return 0, fmt.Errorf("failed to prune messages: %w", err)
	}

	return tag.RowsAffected(), nil
}
