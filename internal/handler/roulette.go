// Package handler maps inbound platform events to state transitions.
package handler

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/game/roulette"
	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
	"group-roulette-bot/internal/state"
)

// Trigger phrases for the roulette game.
var startPhrases = map[string]model.RouletteMode{
	"牛牛轮盘踢人": model.ModeKick,
	"牛牛踢人轮盘": model.ModeKick,
	"牛牛轮盘禁言": model.ModeMute,
	"牛牛禁言轮盘": model.ModeMute,
}

const (
	plainStartPhrase = "牛牛轮盘"
	firePhrase       = "牛牛开枪"
)

var drinkPhrases = map[string]struct{}{
	"牛牛喝酒":  {},
	"牛牛干杯":  {},
	"牛牛继续喝": {},
}

// RouletteHandler routes roulette trigger phrases into the engine.
type RouletteHandler struct {
	engine *roulette.Engine
	bots   *state.BotStore
	roles  *state.RoleCache
	groups *state.GroupStore
	client platform.Client
}

// NewRouletteHandler creates a RouletteHandler.
func NewRouletteHandler(
	engine *roulette.Engine,
	bots *state.BotStore,
	roles *state.RoleCache,
	groups *state.GroupStore,
	client platform.Client,
) *RouletteHandler {
	return &RouletteHandler{
		engine: engine,
		bots:   bots,
		roles:  roles,
		groups: groups,
		client: client,
	}
}

// HandleMessage dispatches one group message. Returns true when the
// message was consumed by the roulette game.
func (h *RouletteHandler) HandleMessage(ctx context.Context, ev model.GroupMessage) bool {
	text := strings.TrimSpace(ev.Text)

	if mode, ok := startPhrases[text]; ok {
		return h.handleTypedStart(ctx, ev, mode)
	}
	if text == plainStartPhrase {
		return h.handleStart(ctx, ev)
	}
	if text == firePhrase {
		return h.handleFire(ctx, ev)
	}
	if _, ok := drinkPhrases[text]; ok {
		// Joining an armed game never consumes the message; the plain
		// drink handler still runs.
		h.handleJoin(ctx, ev)
	}
	return false
}

// botPrivileged checks the bot's own role in the group, syncing the
// role cache on demand. The bot needs admin or owner rights to enact
// any consequence, so every game action is gated on it.
func (h *RouletteHandler) botPrivileged(ctx context.Context, botID, groupID int64) bool {
	role := h.roles.Get(botID, groupID)
	if role == "" {
		synced, err := h.roles.Sync(ctx, h.client, botID, groupID)
		if err != nil {
			log.Warn().Err(err).Int64("group_id", groupID).Msg("Role sync failed")
			return false
		}
		role = synced
	}
	return role.IsPrivileged()
}

// senderPrivileged reports whether the sender may reconfigure the game:
// group owner or admin, or a configured bot admin.
func (h *RouletteHandler) senderPrivileged(ctx context.Context, ev model.GroupMessage) bool {
	if ev.SenderRole.IsPrivileged() {
		return true
	}
	return h.bots.IsAdmin(ctx, ev.BotID, ev.UserID)
}

// handleTypedStart persists the requested mode, then starts a game.
func (h *RouletteHandler) handleTypedStart(ctx context.Context, ev model.GroupMessage, mode model.RouletteMode) bool {
	if !h.engine.CanStart(ev.GroupID) {
		return false
	}
	if !h.botPrivileged(ctx, ev.BotID, ev.GroupID) {
		return false
	}
	if !h.senderPrivileged(ctx, ev) {
		return false
	}

	if err := h.groups.SetRouletteMode(ctx, ev.GroupID, mode); err != nil {
		log.Error().Err(err).Int64("group_id", ev.GroupID).Msg("Failed to persist roulette mode")
		return true
	}

	h.start(ctx, ev)
	return true
}

// handleStart starts a game with the group's persisted mode.
func (h *RouletteHandler) handleStart(ctx context.Context, ev model.GroupMessage) bool {
	if !h.engine.CanStart(ev.GroupID) {
		return false
	}
	if !h.botPrivileged(ctx, ev.BotID, ev.GroupID) {
		return false
	}

	h.start(ctx, ev)
	return true
}

func (h *RouletteHandler) start(ctx context.Context, ev model.GroupMessage) {
	// Start announces itself; an error here means we lost a start race
	// and the winner already announced.
	if _, err := h.engine.Start(ctx, ev); err != nil {
		log.Debug().Err(err).Int64("group_id", ev.GroupID).Msg("Start race lost")
	}
}

// handleFire fires one shot.
func (h *RouletteHandler) handleFire(ctx context.Context, ev model.GroupMessage) bool {
	if !h.engine.Armed(ev.GroupID) {
		return false
	}
	if !h.botPrivileged(ctx, ev.BotID, ev.GroupID) {
		return false
	}

	if err := h.engine.Fire(ctx, ev); err != nil {
		log.Debug().Err(err).Int64("group_id", ev.GroupID).Msg("Fire on inactive game")
	}
	return true
}

// handleJoin adds a drinking player to an armed game.
func (h *RouletteHandler) handleJoin(ctx context.Context, ev model.GroupMessage) {
	if !h.engine.Armed(ev.GroupID) {
		return
	}
	if !h.botPrivileged(ctx, ev.BotID, ev.GroupID) {
		return
	}
	h.engine.Drink(ev.GroupID, ev.UserID)
}
