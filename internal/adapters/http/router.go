package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/adapters/chat"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/identity"
	"github.com/parleychat/parley/internal/store"
)

func SetupRouter(ctx context.Context, cfg *config.Config, rooms *core.Manager, kv store.KV) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookies := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParleySessions", cookies))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")
	api.Use(identity.Middleware(cfg.Secret))

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, rooms.List())
	})

	api.GET("/history", func(c *gin.Context) {
		room := c.Query("room")
		if room == "" {
			room = "main"
		}
		msgs, err := store.History(c.Request.Context(), store.Scoped(kv, "room:"+room))
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("load history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
			return
		}
		c.JSON(http.StatusOK, msgs)
	})

	ctl := chat.NewWSController(rooms, cfg.ReadLimit)
	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleChat(ctx, c)
	})

	return r
}
