package state

import (
	"context"
	"sync"
	"time"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/repository"
)

// GroupStore holds per-group durable settings. The roulette mode and
// ban flag are mirrored in local override maps populated on first access
// and updated eagerly on every mutation, so a write is visible to the
// process immediately even though the config cache may serve a stale
// document until its TTL expires.
type GroupStore struct {
	cfg *Cache[model.GroupConfig]

	mu     sync.Mutex
	modes  map[int64]model.RouletteMode
	banned map[int64]bool
}

// NewGroupStore creates a GroupStore over the group_config collection.
func NewGroupStore(store Store, ttl time.Duration) *GroupStore {
	return &GroupStore{
		cfg:    NewCache[model.GroupConfig](store, repository.CollectionGroupConfig, ttl),
		modes:  make(map[int64]model.RouletteMode),
		banned: make(map[int64]bool),
	}
}

// RouletteMode returns the group's consequence mode, defaulting to kick
// when nothing is persisted.
func (s *GroupStore) RouletteMode(ctx context.Context, groupID int64) model.RouletteMode {
	s.mu.Lock()
	mode, ok := s.modes[groupID]
	s.mu.Unlock()
	if ok {
		return mode
	}

	mode = model.ModeKick
	if doc := s.cfg.Get(ctx, groupID); doc != nil {
		mode = doc.RouletteMode
	}

	s.mu.Lock()
	s.modes[groupID] = mode
	s.mu.Unlock()

	return mode
}

// SetRouletteMode updates the local mode eagerly and writes it through
// to the store.
func (s *GroupStore) SetRouletteMode(ctx context.Context, groupID int64, mode model.RouletteMode) error {
	s.mu.Lock()
	s.modes[groupID] = mode
	s.mu.Unlock()

	return s.cfg.Set(ctx, groupID, map[string]any{"roulette_mode": int(mode)})
}

// IsBanned reports whether the group is blacklisted.
func (s *GroupStore) IsBanned(ctx context.Context, groupID int64) bool {
	s.mu.Lock()
	banned, ok := s.banned[groupID]
	s.mu.Unlock()
	if ok {
		return banned
	}

	banned = false
	if doc := s.cfg.Get(ctx, groupID); doc != nil {
		banned = doc.Banned
	}

	s.mu.Lock()
	s.banned[groupID] = banned
	s.mu.Unlock()

	return banned
}

// Ban blacklists the group, eagerly and write-through.
func (s *GroupStore) Ban(ctx context.Context, groupID int64) error {
	s.mu.Lock()
	s.banned[groupID] = true
	s.mu.Unlock()

	return s.cfg.Set(ctx, groupID, map[string]any{"banned": true})
}
