package handler

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
	"group-roulette-bot/internal/state"
)

const (
	banGroupPhrase = "牛牛拉黑本群"
	banUserPrefix  = "牛牛拉黑"
	addAdminPrefix = "牛牛认主"
)

var atPattern = regexp.MustCompile(`\[CQ:at,qq=(\d+)\]`)

// AdminHandler implements blacklist and bot-admin management commands.
// All of them require the sender to be a configured bot admin.
type AdminHandler struct {
	bots   *state.BotStore
	groups *state.GroupStore
	users  *state.UserStore
	client platform.Client
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(bots *state.BotStore, groups *state.GroupStore, users *state.UserStore, client platform.Client) *AdminHandler {
	return &AdminHandler{bots: bots, groups: groups, users: users, client: client}
}

// HandleMessage dispatches one group message. Returns true when
// consumed.
func (h *AdminHandler) HandleMessage(ctx context.Context, ev model.GroupMessage) bool {
	text := strings.TrimSpace(ev.Text)

	if strings.HasPrefix(text, addAdminPrefix) {
		return h.handleAddAdmin(ctx, ev, text)
	}

	if !h.bots.IsAdmin(ctx, ev.BotID, ev.UserID) {
		return false
	}

	if text == banGroupPhrase {
		return h.handleBanGroup(ctx, ev)
	}
	if strings.HasPrefix(text, banUserPrefix) {
		return h.handleBanUser(ctx, ev, text)
	}
	return false
}

// handleAddAdmin registers the mentioned user as a bot admin. Only the
// group owner or an existing bot admin may do this.
func (h *AdminHandler) handleAddAdmin(ctx context.Context, ev model.GroupMessage, text string) bool {
	if ev.SenderRole != model.RoleOwner && !h.bots.IsAdmin(ctx, ev.BotID, ev.UserID) {
		return false
	}

	target, ok := mentionedUser(text)
	if !ok {
		return false
	}

	if err := h.bots.AddAdmin(ctx, ev.BotID, target); err != nil {
		log.Error().Err(err).Int64("user_id", target).Msg("Failed to add bot admin")
		return true
	}

	h.reply(ctx, ev.GroupID, "好哦，以后就听"+platform.At(target)+"的！")
	return true
}

// handleBanGroup blacklists the group and leaves it.
func (h *AdminHandler) handleBanGroup(ctx context.Context, ev model.GroupMessage) bool {
	if err := h.groups.Ban(ctx, ev.GroupID); err != nil {
		log.Error().Err(err).Int64("group_id", ev.GroupID).Msg("Failed to ban group")
		return true
	}

	if err := h.client.LeaveGroup(ctx, ev.GroupID); err != nil {
		log.Warn().Err(err).Int64("group_id", ev.GroupID).Msg("Failed to leave banned group")
	}
	return true
}

// handleBanUser blacklists the mentioned user.
func (h *AdminHandler) handleBanUser(ctx context.Context, ev model.GroupMessage, text string) bool {
	target, ok := mentionedUser(text)
	if !ok {
		return false
	}

	if err := h.users.Ban(ctx, target); err != nil {
		log.Error().Err(err).Int64("user_id", target).Msg("Failed to ban user")
		return true
	}

	h.reply(ctx, ev.GroupID, "哼，不理"+platform.At(target)+"了。")
	return true
}

// mentionedUser extracts the first CQ-code mention from the text.
func mentionedUser(text string) (int64, bool) {
	m := atPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (h *AdminHandler) reply(ctx context.Context, groupID int64, content string) {
	if err := h.client.SendMessage(ctx, groupID, content); err != nil {
		log.Warn().Err(err).Int64("group_id", groupID).Msg("Failed to send reply")
	}
}
