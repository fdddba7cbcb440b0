package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tcmhub/internal/api"
	"tcmhub/internal/auth"
	"tcmhub/internal/config"
	"tcmhub/internal/events"
	"tcmhub/internal/logger"
	"tcmhub/internal/models"
	"tcmhub/internal/redis"
	"tcmhub/internal/service/ai"
	"tcmhub/internal/service/assistant"
	"tcmhub/internal/service/community"
	"tcmhub/internal/service/profile"
	"tcmhub/internal/shell"
	"tcmhub/internal/storage"
	"tcmhub/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv("TCMHUB_CONFIG"))
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.BasicConfig.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("open database", "type", cfg.DatabaseType)
	db, err := storage.Open(cfg.DatabaseType, cfg)
	if err != nil {
		log.Fatal("open database", "error", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.DatabaseType); err != nil {
		log.Fatal("migrate database", "error", err)
	}

	hub := events.NewHub()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatal("create redis client", "error", err)
		}
		defer rdb.Close()

		bridge := events.NewRedisBridge(log, rdb, cfg.Redis.Channel, hub)
		if err := bridge.Start(ctx); err != nil {
			log.Fatal("start event bridge", "error", err)
		}
		defer bridge.Close()
	}

	now := time.Now()
	var (
		sessionSeed assistant.SeedFunc
		posts       []*models.Post
		videos      []*models.Video
		users       []*models.User
	)
	if !cfg.BasicConfig.DisableFixtures {
		sessionSeed = assistant.FixtureSessions
		posts = community.FixturePosts(now)
		videos = community.FixtureVideos(now)
		users = profile.FixtureUsers(now)
	}

	sessions := assistant.NewService(
		assistant.WithSeed(sessionSeed),
		assistant.WithEvents(hub),
		assistant.WithLogger(log),
	)
	forum := community.NewForum(posts, community.WithEvents(hub), community.WithLogger(log))
	videoStore := community.NewVideos(videos, community.WithEvents(hub), community.WithLogger(log))
	directory := profile.NewDirectory(users, hub, log)
	shells := shell.NewRegistry(hub)
	shells.StartCleanup(ctx, 0, 0)

	gateway, err := ai.NewFromConfig(ctx, cfg, log)
	if err != nil {
		log.Warn("assistant unavailable, replies will fail until configured", "error", err)
		gateway = ai.NewGateway(nil, cfg.Assistant.SystemInstruction, log)
	}
	replies := worker.NewManager(sessions, gateway, worker.Config{
		MaxConcurrent: int64(cfg.Assistant.MaxConcurrentReplies),
		Timeout:       cfg.ReplyTimeout(),
		RatePerMinute: cfg.Assistant.RatePerMinute,
		Burst:         cfg.Assistant.Burst,
	}, log)
	replies.StartLimiterCleanup(ctx, 0)

	authService := auth.NewService(db, rdb, cfg.TokenTTL(), log)
	authService.StartSweeper(ctx, cfg.SweepInterval())
	clientKeys, err := auth.NewClientKeys(cfg.Auth.ClientKeySecret)
	if err != nil {
		log.Fatal("client keys", "error", err)
	}

	dev := cfg.BasicConfig.LogMode == "dev"
	if !dev {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if dev {
		router.Use(gin.Logger())
	}
	handler, err := api.NewHandler(api.Deps{
		Auth:       authService,
		ClientKeys: clientKeys,
		Sessions:   sessions,
		Replies:    replies,
		Forum:      forum,
		Videos:     videoStore,
		Users:      directory,
		Shell:      shells,
		Hub:        hub,
		Log:        log,
	})
	if err != nil {
		log.Fatal("build handler", "error", err)
	}
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", "error", err)
	}
	if n := replies.InFlight(); n > 0 {
		log.Info("waiting for assistant replies", "count", n)
	}
	replies.Wait()
}
