package handler

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
	"group-roulette-bot/internal/state"
)

const (
	soberPhrase = "牛牛醒酒"
	sleepPhrase = "牛牛睡觉"

	drinkAction   = "drink"
	sleepDuration = 6 * time.Hour
)

// DrinkHandler manages the bot's mood: drinking, sobering up and sleep.
type DrinkHandler struct {
	bots   *state.BotStore
	client platform.Client
}

// NewDrinkHandler creates a DrinkHandler.
func NewDrinkHandler(bots *state.BotStore, client platform.Client) *DrinkHandler {
	return &DrinkHandler{bots: bots, client: client}
}

// HandleMessage dispatches one group message. Returns true when
// consumed.
func (h *DrinkHandler) HandleMessage(ctx context.Context, ev model.GroupMessage) bool {
	text := strings.TrimSpace(ev.Text)

	if _, ok := drinkPhrases[text]; ok {
		return h.handleDrink(ctx, ev)
	}
	switch text {
	case soberPhrase:
		return h.handleSober(ctx, ev)
	case sleepPhrase:
		return h.handleSleep(ctx, ev)
	}
	return false
}

// handleDrink raises the group's drunkenness, rate limited by the
// per-bot action cooldown.
func (h *DrinkHandler) handleDrink(ctx context.Context, ev model.GroupMessage) bool {
	if h.bots.IsSleep(ev.BotID, ev.GroupID) {
		return false
	}
	if !h.bots.IsCooldownReady(ev.BotID, ev.GroupID, drinkAction) {
		return false
	}

	h.bots.Drink(ev.GroupID)
	h.bots.RefreshCooldown(ev.BotID, ev.GroupID, drinkAction)

	level := h.bots.Drunkenness(ev.GroupID)
	log.Info().Int64("group_id", ev.GroupID).Int("drunkenness", level).Msg("Bot drank")

	h.reply(ctx, ev.GroupID, "呀，好喝！咕噜咕噜......再来一杯！")
	return true
}

// handleSober lowers the group's drunkenness by one.
func (h *DrinkHandler) handleSober(ctx context.Context, ev model.GroupMessage) bool {
	if h.bots.SoberUp(ev.GroupID) {
		h.reply(ctx, ev.GroupID, "呼......咱已经完全清醒了。")
	} else {
		h.reply(ctx, ev.GroupID, "唔......头好晕，还没完全醒呢。")
	}
	return true
}

// handleSleep puts the bot to sleep in this group. Only configured bot
// admins and group managers may order it.
func (h *DrinkHandler) handleSleep(ctx context.Context, ev model.GroupMessage) bool {
	if !ev.SenderRole.IsPrivileged() && !h.bots.IsAdmin(ctx, ev.BotID, ev.UserID) {
		return false
	}

	h.bots.Sleep(ev.BotID, ev.GroupID, sleepDuration)
	h.reply(ctx, ev.GroupID, "晚安......")
	return true
}

func (h *DrinkHandler) reply(ctx context.Context, groupID int64, content string) {
	if err := h.client.SendMessage(ctx, groupID, content); err != nil {
		log.Warn().Err(err).Int64("group_id", groupID).Msg("Failed to send reply")
	}
}
