// Package main is the entry point for the group roulette bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/bot"
	"group-roulette-bot/internal/config"
	"group-roulette-bot/internal/game/roulette"
	"group-roulette-bot/internal/handler"
	"group-roulette-bot/internal/pkg/db"
	"group-roulette-bot/internal/platform/onebot"
	"group-roulette-bot/internal/repository"
	"group-roulette-bot/internal/scheduler"
	"group-roulette-bot/internal/state"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	configRepo := repository.NewConfigRepository(dbPool.Pool)
	messageRepo := repository.NewMessageRepository(dbPool.Pool)

	// Initialize state stores over the config cache
	bots := state.NewBotStore(configRepo, cfg.Cache.TTL(), cfg.Bot.Cooldown())
	groups := state.NewGroupStore(configRepo, cfg.Cache.TTL())
	users := state.NewUserStore(configRepo, cfg.Cache.TTL())
	roles := state.NewRoleCache()

	// Initialize the OneBot client
	client := onebot.New(cfg.Bot.WSURL, cfg.Bot.AccessToken, cfg.Bot.SelfID)
	if err := client.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to OneBot endpoint")
	}
	defer client.Close()

	// Initialize the roulette game
	rejoin := roulette.NewRejoinList()
	resolver := roulette.NewResolver(groups, roles, client)
	dispatcher := roulette.NewDispatcher(client, rejoin)
	engine := roulette.NewEngine(bots, groups, roles, resolver, dispatcher, client, cfg.Roulette.Timeout())

	// Create bot dependencies
	deps := &bot.Dependencies{
		Events:   client,
		Groups:   groups,
		Users:    users,
		Messages: messageRepo,

		Roulette: handler.NewRouletteHandler(engine, bots, roles, groups, client),
		Drink:    handler.NewDrinkHandler(bots, client),
		Admin:    handler.NewAdminHandler(bots, groups, users, client),
		Notice:   handler.NewNoticeHandler(bots, roles, client),
		Request:  handler.NewRequestHandler(bots, rejoin, client),
	}

	// Start the periodic jobs
	go scheduler.NewNameJob(bots, roles, client, messageRepo).Run(ctx)
	go scheduler.NewSoberJob(bots).Run(ctx)

	// Start bot in a goroutine
	rouletteBot := bot.New(deps)
	go func() {
		log.Info().Msg("Bot is starting...")
		rouletteBot.Run(ctx)
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	cancel()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create the configs document table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS configs (
			collection VARCHAR(50) NOT NULL,
			entity_id BIGINT NOT NULL,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, entity_id)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: configs table created")

	// Migration 2: Create the group_messages sampling table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS group_messages (
			id BIGSERIAL PRIMARY KEY,
			bot_id BIGINT NOT NULL,
			group_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_group_messages_group ON group_messages(group_id);
		CREATE INDEX IF NOT EXISTS idx_group_messages_created ON group_messages(created_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: group_messages table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
