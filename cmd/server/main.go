package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/parleychat/parley/internal/adapters/http"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/moderation"
	"github.com/parleychat/parley/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	kv, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	denylist := moderation.BuildCompiledDenylist(moderation.Sources{
		Preset:    cfg.Moderation.Preset,
		Extra:     cfg.Moderation.Extra,
		Allowlist: cfg.Moderation.Allowlist,
	})
	log.Info().Int("terms", len(denylist)).Msg("compiled denylist")

	rooms := core.NewManager(roomConfig(cfg), kv, denylist)
	if err := rooms.LoadDenied(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load denied user ids")
	}
	defer rooms.StopAll()

	r := router.SetupRouter(ctx, cfg, rooms, kv)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Parley server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (store.KV, error) {
	if cfg.RedisURL == "" {
		log.Warn().Msg("no redis_url configured, using in-memory store")
		return store.NewMemory(), nil
	}
	return store.NewRedis(ctx, cfg.RedisURL, "parley")
}

func roomConfig(cfg *config.Config) core.RoomConfig {
	rc := core.DefaultRoomConfig()
	if cfg.MaxFrameBytes > 0 {
		rc.MaxFrameBytes = cfg.MaxFrameBytes
	}
	if cfg.MaxInvalidPayloads > 0 {
		rc.MaxInvalidPayloads = cfg.MaxInvalidPayloads
	}
	if cfg.PresenceWindow > 0 {
		rc.PresenceWindow = cfg.PresenceWindow
	}
	if cfg.RateLimitMessages > 0 {
		rc.RateLimitMessages = cfg.RateLimitMessages
	}
	if cfg.RateLimitWindow > 0 {
		rc.RateLimitWindow = cfg.RateLimitWindow
	}
	if cfg.HistoryLimit > 0 {
		rc.HistoryLimit = cfg.HistoryLimit
	}
	return rc
}
