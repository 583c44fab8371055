package handler

import (
	"context"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/game/roulette"
	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
	"group-roulette-bot/internal/state"
)

// RequestHandler approves group join requests: roulette victims on the
// rejoin allowlist always get back in, everyone else only when the bot
// is set to auto-accept and the account is in a safe state.
type RequestHandler struct {
	bots   *state.BotStore
	rejoin *roulette.RejoinList
	client platform.Client
}

// NewRequestHandler creates a RequestHandler.
func NewRequestHandler(bots *state.BotStore, rejoin *roulette.RejoinList, client platform.Client) *RequestHandler {
	return &RequestHandler{bots: bots, rejoin: rejoin, client: client}
}

// HandleJoinRequest processes one join request.
func (h *RequestHandler) HandleJoinRequest(ctx context.Context, ev model.JoinRequest) {
	if ev.SubType != "add" {
		return
	}

	if h.rejoin.Take(ev.GroupID, ev.UserID) {
		h.approve(ctx, ev, "rejoin after roulette")
		return
	}

	if h.bots.AutoAccept(ctx, ev.BotID) && h.bots.Security(ctx, ev.BotID) {
		h.approve(ctx, ev, "auto accept")
	}
}

func (h *RequestHandler) approve(ctx context.Context, ev model.JoinRequest, reason string) {
	if err := h.client.ApproveJoinRequest(ctx, ev.Flag, ev.SubType); err != nil {
		log.Warn().Err(err).
			Int64("group_id", ev.GroupID).
			Int64("user_id", ev.UserID).
			Msg("Failed to approve join request")
		return
	}

	log.Info().
		Int64("group_id", ev.GroupID).
		Int64("user_id", ev.UserID).
		Str("reason", reason).
		Msg("Join request approved")
}
