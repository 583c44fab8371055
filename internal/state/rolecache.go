package state

import (
	"context"
	"fmt"
	"sync"

	"group-roulette-bot/internal/model"
)

// RoleFetcher fetches a member's info from the platform. Implemented by
// platform.Client.
type RoleFetcher interface {
	GetMemberInfo(ctx context.Context, groupID, userID int64) (model.MemberInfo, error)
}

// RoleCache caches the bot's own role per group. Role checks must see a
// populated cache; Sync fetches on demand and the admin-change notice
// handler updates it proactively.
type RoleCache struct {
	mu    sync.RWMutex
	roles map[int64]map[int64]model.Role // bot -> group
}

// NewRoleCache creates an empty RoleCache.
func NewRoleCache() *RoleCache {
	return &RoleCache{roles: make(map[int64]map[int64]model.Role)}
}

// Get returns the cached role, or "" when not yet synced.
func (c *RoleCache) Get(botID, groupID int64) model.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roles[botID][groupID]
}

// Update stores a role, overwriting any cached value.
func (c *RoleCache) Update(botID, groupID int64, role model.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roles[botID] == nil {
		c.roles[botID] = make(map[int64]model.Role)
	}
	c.roles[botID][groupID] = role
}

// Sync fetches the bot's role in the group and caches it.
func (c *RoleCache) Sync(ctx context.Context, fetcher RoleFetcher, botID, groupID int64) (model.Role, error) {
	info, err := fetcher.GetMemberInfo(ctx, groupID, botID)
	if err != nil {
		return "", fmt.Errorf("failed to sync role: %w", err)
	}

	c.Update(botID, groupID, info.Role)
	return info.Role, nil
}
