package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/streamnest/live-session-service/internal/config"
	"github.com/streamnest/live-session-service/internal/handler"
	"github.com/streamnest/live-session-service/internal/hub"
	"github.com/streamnest/live-session-service/internal/registry"
	"github.com/streamnest/live-session-service/internal/reward"
	"github.com/streamnest/live-session-service/internal/service"
	pkglog "github.com/streamnest/live-session-service/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "live-session-service",
	})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting live-session-service")

	// Reward engine; a malformed tier table is a deployment error
	rewardEngine, err := reward.NewEngine(cfg.Reward)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid reward configuration")
	}

	// Registries
	sessions := registry.NewSessionRegistry(cfg.Session.Retention)
	chat := registry.NewChatLog(cfg.Chat.MaxMessageLength, cfg.Chat.MaxEmojiLength)
	invitations := registry.NewInvitationRegistry(cfg.Invite.DefaultTTL)
	peers := registry.NewPeerRegistry()

	// Hub
	wsHub := hub.NewHub()
	go wsHub.Run()

	// Service
	liveSvc := service.NewLiveService(sessions, chat, invitations, peers, rewardEngine, wsHub, cfg.Invite.SweepInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := liveSvc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start live service")
	}
	defer liveSvc.Stop()

	// Handlers
	httpHandler := handler.NewHandler(liveSvc, cfg.Session.DefaultMaxParticipants, cfg.Chat.HistoryLimit)
	wsHandler := handler.NewWSHandler(liveSvc, wsHub, cfg.WebSocket)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "sessions": sessions.Count()})
	})

	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("live-session-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("shutting down live-session-service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}

	logger.Info().Msg("live-session-service stopped")
}
