// Package bot wires the event stream to the handlers: one goroutine per
// inbound event, with ban filtering and message recording up front.
package bot

import (
	"context"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/handler"
	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
	"group-roulette-bot/internal/repository"
	"group-roulette-bot/internal/state"
)

// Dependencies holds everything the dispatch loop needs.
type Dependencies struct {
	Events   platform.EventSource
	Groups   *state.GroupStore
	Users    *state.UserStore
	Messages *repository.MessageRepository

	Roulette *handler.RouletteHandler
	Drink    *handler.DrinkHandler
	Admin    *handler.AdminHandler
	Notice   *handler.NoticeHandler
	Request  *handler.RequestHandler
}

// Bot consumes platform events and routes them to the handlers.
type Bot struct {
	deps *Dependencies
}

// New creates a Bot.
func New(deps *Dependencies) *Bot {
	return &Bot{deps: deps}
}

// Run consumes events until the stream closes or ctx is cancelled.
// Every event is handled in its own goroutine; shared state is
// synchronized by its owners.
func (b *Bot) Run(ctx context.Context) {
	log.Info().Msg("Bot dispatch loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Bot dispatch loop stopped")
			return
		case ev, ok := <-b.deps.Events.Events():
			if !ok {
				log.Info().Msg("Event stream closed")
				return
			}
			go b.dispatch(ctx, ev)
		}
	}
}

// dispatch handles one event, recovering from handler panics so one bad
// event cannot take the loop down.
func (b *Bot) dispatch(ctx context.Context, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic in event handler")
		}
	}()

	switch ev := ev.(type) {
	case model.GroupMessage:
		b.dispatchMessage(ctx, ev)
	case model.AdminNotice:
		b.deps.Notice.HandleAdminNotice(ctx, ev)
	case model.CardNotice:
		b.deps.Notice.HandleCardNotice(ctx, ev)
	case model.JoinRequest:
		if b.deps.Groups.IsBanned(ctx, ev.GroupID) {
			return
		}
		b.deps.Request.HandleJoinRequest(ctx, ev)
	}
}

func (b *Bot) dispatchMessage(ctx context.Context, ev model.GroupMessage) {
	if b.deps.Groups.IsBanned(ctx, ev.GroupID) || b.deps.Users.IsBanned(ctx, ev.UserID) {
		return
	}

	if err := b.deps.Messages.Record(ctx, ev); err != nil {
		log.Warn().Err(err).Int64("group_id", ev.GroupID).Msg("Failed to record message")
	}

	if b.deps.Roulette.HandleMessage(ctx, ev) {
		return
	}
	if b.deps.Drink.HandleMessage(ctx, ev) {
		return
	}
	b.deps.Admin.HandleMessage(ctx, ev)
}
