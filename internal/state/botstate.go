package state

import (
	"context"
	"sync"
	"time"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/repository"
)

// DefaultCooldown is the default per-bot action cooldown.
const DefaultCooldown = 5 * time.Second

// BotStore holds per-bot runtime state. Durable fields (admin list,
// security and auto-accept flags) live in the config cache; cooldowns,
// drunkenness, sleep and the taken-name target are process-wide
// in-memory maps and are never persisted.
type BotStore struct {
	cfg      *Cache[model.BotConfig]
	cooldown time.Duration
	clock    func() time.Time

	mu         sync.Mutex
	cooldowns  map[int64]map[int64]map[string]time.Time // bot -> group -> action
	drunk      map[int64]int                            // group -> drunkenness
	sleepUntil map[int64]map[int64]time.Time            // bot -> group
	takenNames map[int64]map[int64]int64                // bot -> group -> user
}

// NewBotStore creates a BotStore over the bot_config collection.
// Non-positive ttl or cooldown fall back to the defaults.
func NewBotStore(store Store, ttl, cooldown time.Duration) *BotStore {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &BotStore{
		cfg:        NewCache[model.BotConfig](store, repository.CollectionBotConfig, ttl),
		cooldown:   cooldown,
		clock:      time.Now,
		cooldowns:  make(map[int64]map[int64]map[string]time.Time),
		drunk:      make(map[int64]int),
		sleepUntil: make(map[int64]map[int64]time.Time),
		takenNames: make(map[int64]map[int64]int64),
	}
}

// IsAdmin reports whether the user is a configured admin of this bot.
// A missing document or list means not admin.
func (s *BotStore) IsAdmin(ctx context.Context, botID, userID int64) bool {
	doc := s.cfg.Get(ctx, botID)
	if doc == nil {
		return false
	}
	for _, id := range doc.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// AddAdmin appends the user to the persisted admin list. Duplicates are
// possible and tolerated.
func (s *BotStore) AddAdmin(ctx context.Context, botID, userID int64) error {
	return s.cfg.Append(ctx, botID, "admins", userID)
}

// Security reports whether the account is in a safe state.
func (s *BotStore) Security(ctx context.Context, botID int64) bool {
	doc := s.cfg.Get(ctx, botID)
	return doc != nil && doc.Security
}

// AutoAccept reports whether join requests are accepted automatically.
func (s *BotStore) AutoAccept(ctx context.Context, botID int64) bool {
	doc := s.cfg.Get(ctx, botID)
	return doc != nil && doc.AutoAccept
}

// IsCooldownReady reports whether the action's cooldown has elapsed.
// An action never performed is always ready.
func (s *BotStore) IsCooldownReady(botID, groupID int64, action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.cooldowns[botID][groupID][action]
	if !ok {
		return true
	}
	return s.clock().Sub(last) >= s.cooldown
}

// RefreshCooldown restarts the action's cooldown window.
func (s *BotStore) RefreshCooldown(botID, groupID int64, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cooldowns[botID] == nil {
		s.cooldowns[botID] = make(map[int64]map[string]time.Time)
	}
	if s.cooldowns[botID][groupID] == nil {
		s.cooldowns[botID][groupID] = make(map[string]time.Time)
	}
	s.cooldowns[botID][groupID][action] = s.clock()
}

// Drink raises the group's drunkenness by one.
func (s *BotStore) Drink(groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drunk[groupID]++
}

// SoberUp lowers the group's drunkenness by one and reports whether the
// bot is now fully sober. The counter may dip below zero momentarily;
// Drunkenness still reads it as-is.
func (s *BotStore) SoberUp(groupID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drunk[groupID]--
	return s.drunk[groupID] <= 0
}

// Drunkenness returns the group's current drunkenness level.
func (s *BotStore) Drunkenness(groupID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drunk[groupID]
}

// CompletelySober resets drunkenness in every group.
func (s *BotStore) CompletelySober() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for groupID := range s.drunk {
		s.drunk[groupID] = 0
	}
}

// DrunkGroups returns the groups with a positive drunkenness level.
func (s *BotStore) DrunkGroups() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([]int64, 0, len(s.drunk))
	for groupID, level := range s.drunk {
		if level > 0 {
			groups = append(groups, groupID)
		}
	}
	return groups
}

// Sleep puts the bot to sleep in the group until now + d.
func (s *BotStore) Sleep(botID, groupID int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sleepUntil[botID] == nil {
		s.sleepUntil[botID] = make(map[int64]time.Time)
	}
	s.sleepUntil[botID][groupID] = s.clock().Add(d)
}

// IsSleep reports whether the bot is still asleep in the group.
func (s *BotStore) IsSleep(botID, groupID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sleepUntil[botID][groupID].After(s.clock())
}

// TakenName returns the user whose name the bot currently wears in the
// group, if any.
func (s *BotStore) TakenName(botID, groupID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.takenNames[botID][groupID]
	return userID, ok
}

// UpdateTakenName records the user whose name the bot took in the group.
func (s *BotStore) UpdateTakenName(botID, groupID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.takenNames[botID] == nil {
		s.takenNames[botID] = make(map[int64]int64)
	}
	s.takenNames[botID][groupID] = userID
}
