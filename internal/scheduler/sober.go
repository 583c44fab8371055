package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/state"
)

// SoberJob lowers every drunk group's drunkenness by one per tick so
// the bot does not stay drunk forever.
type SoberJob struct {
	bots     *state.BotStore
	interval time.Duration
}

// NewSoberJob creates a SoberJob with a one-hour tick.
func NewSoberJob(bots *state.BotStore) *SoberJob {
	return &SoberJob{bots: bots, interval: time.Hour}
}

// Run ticks until ctx is cancelled.
func (j *SoberJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce()
		}
	}
}

func (j *SoberJob) runOnce() {
	for _, groupID := range j.bots.DrunkGroups() {
		if j.bots.SoberUp(groupID) {
			log.Info().Int64("group_id", groupID).Msg("Bot sobered up")
		}
	}
}
