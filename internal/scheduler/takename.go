// Package scheduler runs the periodic jobs: name stealing and
// sobering up. Jobs are plain tickers; there is no cron layer.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
	"group-roulette-bot/internal/state"
)

// nameChangeChance gates each group per tick; with a one-minute tick
// this renames roughly once per eight hours per group.
const nameChangeChance = 0.002

// stolenNames is what the bot renames its victim to when drunk.
var stolenNames = []string{"帕拉斯", "牛牛", "牛牛喝酒", "牛牛干杯", "牛牛继续喝"}

// MessageSampler supplies one random recorded message per group.
// Implemented by repository.MessageRepository.
type MessageSampler interface {
	RandomPerGroup(ctx context.Context) (map[int64]model.GroupMessage, error)
}

// NameJob periodically steals a random group member's display name:
// the bot copies the member's card, and when drunk and privileged also
// renames the member to a bot-themed name.
type NameJob struct {
	bots     *state.BotStore
	roles    *state.RoleCache
	client   platform.Client
	messages MessageSampler

	interval time.Duration
	roll     func() bool
	pickName func() string
}

// NewNameJob creates a NameJob with a one-minute tick.
func NewNameJob(bots *state.BotStore, roles *state.RoleCache, client platform.Client, messages MessageSampler) *NameJob {
	return &NameJob{
		bots:     bots,
		roles:    roles,
		client:   client,
		messages: messages,
		interval: time.Minute,
		roll:     func() bool { return rand.Float64() < nameChangeChance },
		pickName: func() string { return stolenNames[rand.Intn(len(stolenNames))] },
	}
}

// Run ticks until ctx is cancelled.
func (j *NameJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

// runOnce processes one tick. Platform failures (member left, bot
// kicked) skip the group and try again next tick.
func (j *NameJob) runOnce(ctx context.Context) {
	candidates, err := j.messages.RandomPerGroup(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Name job: sampling failed")
		return
	}

	for groupID, msg := range candidates {
		if !j.roll() {
			continue
		}
		if j.bots.IsSleep(msg.BotID, groupID) {
			continue
		}

		info, err := j.client.GetMemberInfo(ctx, groupID, msg.UserID)
		if err != nil {
			// Probably left the group.
			continue
		}

		card := info.DisplayName()
		log.Info().
			Int64("bot_id", msg.BotID).
			Int64("group_id", groupID).
			Int64("user_id", msg.UserID).
			Str("card", card).
			Msg("Name job: taking name")

		if err := j.client.SetMemberCard(ctx, groupID, msg.BotID, card); err != nil {
			continue
		}

		if j.bots.Drunkenness(groupID) > 0 && j.roles.Get(msg.BotID, groupID).IsPrivileged() {
			_ = j.client.SetMemberCard(ctx, groupID, msg.UserID, j.pickName())
		}

		_ = j.client.Poke(ctx, groupID, msg.UserID)
		j.bots.UpdateTakenName(msg.BotID, groupID, msg.UserID)
	}
}
