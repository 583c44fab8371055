package roulette

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
	"group-roulette-bot/internal/state"
)

// RejoinList remembers users removed by the roulette so their next join
// request is approved automatically, once.
type RejoinList struct {
	mu     sync.Mutex
	groups map[int64]map[int64]struct{}
}

// NewRejoinList creates an empty RejoinList.
func NewRejoinList() *RejoinList {
	return &RejoinList{groups: make(map[int64]map[int64]struct{})}
}

// Add marks the user as allowed to rejoin the group.
func (l *RejoinList) Add(groupID, userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.groups[groupID] == nil {
		l.groups[groupID] = make(map[int64]struct{})
	}
	l.groups[groupID][userID] = struct{}{}
}

// Take consumes the user's rejoin allowance, reporting whether one
// existed.
func (l *RejoinList) Take(groupID, userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.groups[groupID][userID]; !ok {
		return false
	}
	delete(l.groups[groupID], userID)
	return true
}

// Resolver decides the consequence for a hit target. It never executes
// anything; it returns a pending action, or nil when the target is not
// eligible for any consequence.
type Resolver struct {
	groups *state.GroupStore
	roles  *state.RoleCache
	client platform.Client

	// muteDuration draws the restrict duration, overridable in tests.
	muteDuration func() time.Duration
}

// NewResolver creates a Resolver.
func NewResolver(groups *state.GroupStore, roles *state.RoleCache, client platform.Client) *Resolver {
	return &Resolver{
		groups: groups,
		roles:  roles,
		client: client,
		muteDuration: func() time.Duration {
			return time.Duration(rand.Intn(16)+5) * time.Minute
		},
	}
}

// Resolve maps (bot, group, target) to at most one pending action.
//
// Self-target: kick mode makes the bot leave the group, unless it owns
// the group (an owner cannot leave without disbanding); mute mode is a
// no-op since the bot cannot mute itself. Other targets: owners are
// untouchable, admins only fall to an owner bot. Role lookup failures
// count as not eligible.
func (r *Resolver) Resolve(ctx context.Context, botID, groupID, targetID int64) *model.PendingAction {
	mode := r.groups.RouletteMode(ctx, groupID)
	selfRole := r.roles.Get(botID, groupID)

	if botID == targetID {
		if mode == model.ModeMute {
			return nil
		}
		if selfRole == model.RoleOwner {
			return nil
		}
		return &model.PendingAction{Kind: model.ActionLeaveGroup, GroupID: groupID}
	}

	info, err := r.client.GetMemberInfo(ctx, groupID, targetID)
	if err != nil {
		log.Warn().Err(err).
			Int64("group_id", groupID).
			Int64("user_id", targetID).
			Msg("Target role lookup failed, no consequence")
		return nil
	}

	if info.Role == model.RoleOwner {
		return nil
	}
	if info.Role == model.RoleAdmin && selfRole != model.RoleOwner {
		return nil
	}

	if mode == model.ModeMute {
		return &model.PendingAction{
			Kind:     model.ActionRestrictMember,
			GroupID:  groupID,
			UserID:   targetID,
			Duration: r.muteDuration(),
		}
	}

	return &model.PendingAction{
		Kind:    model.ActionRemoveMember,
		GroupID: groupID,
		UserID:  targetID,
	}
}

// Dispatcher executes pending actions through the platform client.
// Failures are logged and swallowed; committed game state is never
// rolled back because an action could not land.
type Dispatcher struct {
	client platform.Client
	rejoin *RejoinList
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(client platform.Client, rejoin *RejoinList) *Dispatcher {
	return &Dispatcher{client: client, rejoin: rejoin}
}

// Execute applies one pending action. Removal targets are added to the
// rejoin allowlist before the kick goes out.
func (d *Dispatcher) Execute(ctx context.Context, action *model.PendingAction) {
	var err error
	switch action.Kind {
	case model.ActionLeaveGroup:
		err = d.client.LeaveGroup(ctx, action.GroupID)
	case model.ActionRemoveMember:
		d.rejoin.Add(action.GroupID, action.UserID)
		err = d.client.RemoveMember(ctx, action.GroupID, action.UserID)
	case model.ActionRestrictMember:
		err = d.client.RestrictMember(ctx, action.GroupID, action.UserID, action.Duration)
	}

	if err != nil {
		log.Warn().Err(err).
			Int("kind", int(action.Kind)).
			Int64("group_id", action.GroupID).
			Int64("user_id", action.UserID).
			Msg("Consequence action failed, skipping")
	}
}
