package handler

import (
	"context"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
	"group-roulette-bot/internal/state"
)

// NoticeHandler reacts to group notices: role changes for the bot's own
// account and card changes of the user whose name the bot took.
type NoticeHandler struct {
	bots   *state.BotStore
	roles  *state.RoleCache
	client platform.Client
}

// NewNoticeHandler creates a NoticeHandler.
func NewNoticeHandler(bots *state.BotStore, roles *state.RoleCache, client platform.Client) *NoticeHandler {
	return &NoticeHandler{bots: bots, roles: roles, client: client}
}

// HandleAdminNotice refreshes the role cache when the bot's own admin
// status changes.
func (h *NoticeHandler) HandleAdminNotice(ctx context.Context, ev model.AdminNotice) {
	if ev.UserID != ev.BotID {
		return
	}

	if _, err := h.roles.Sync(ctx, h.client, ev.BotID, ev.GroupID); err != nil {
		log.Warn().Err(err).Int64("group_id", ev.GroupID).Msg("Role sync after admin notice failed")
	}
}

// HandleCardNotice follows a renamed taken-name target: when the user
// whose name the bot wears changes their card, the bot copies it again.
func (h *NoticeHandler) HandleCardNotice(ctx context.Context, ev model.CardNotice) {
	taken, ok := h.bots.TakenName(ev.BotID, ev.GroupID)
	if !ok || taken != ev.UserID {
		return
	}

	info, err := h.client.GetMemberInfo(ctx, ev.GroupID, ev.UserID)
	if err != nil {
		return
	}

	if err := h.client.SetMemberCard(ctx, ev.GroupID, ev.BotID, info.DisplayName()); err != nil {
		return
	}
	h.bots.UpdateTakenName(ev.BotID, ev.GroupID, ev.UserID)

	log.Info().
		Int64("group_id", ev.GroupID).
		Int64("user_id", ev.UserID).
		Msg("Followed taken-name card change")
}
