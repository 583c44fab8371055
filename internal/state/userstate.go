package state

import (
	"context"
	"sync"
	"time"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/repository"
)

// UserStore holds per-user durable settings, currently just the ban
// flag, mirrored locally like GroupStore.
type UserStore struct {
	cfg *Cache[model.UserConfig]

	mu     sync.Mutex
	banned map[int64]bool
}

// NewUserStore creates a UserStore over the user_config collection.
func NewUserStore(store Store, ttl time.Duration) *UserStore {
	return &UserStore{
		cfg:    NewCache[model.UserConfig](store, repository.CollectionUserConfig, ttl),
		banned: make(map[int64]bool),
	}
}

// IsBanned reports whether the user is blacklisted.
func (s *UserStore) IsBanned(ctx context.Context, userID int64) bool {
	s.mu.Lock()
	banned, ok := s.banned[userID]
	s.mu.Unlock()
	if ok {
		return banned
	}

	banned = false
	if doc := s.cfg.Get(ctx, userID); doc != nil {
		banned = doc.Banned
	}

	s.mu.Lock()
	s.banned[userID] = banned
	s.mu.Unlock()

	return banned
}

// Ban blacklists the user, eagerly and write-through.
func (s *UserStore) Ban(ctx context.Context, userID int64) error {
	s.mu.Lock()
	s.banned[userID] = true
	s.mu.Unlock()

	return s.cfg.Set(ctx, userID, map[string]any{"banned": true})
}
