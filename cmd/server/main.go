// Package main runs the hype detection and clip distribution HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/auth"
	"github.com/hypecast/backend/internal/clips"
	"github.com/hypecast/backend/internal/metrics"
	"github.com/hypecast/backend/internal/middleware"
	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/internal/publisher"
	"github.com/hypecast/backend/internal/realtime"
	"github.com/hypecast/backend/internal/scheduler"
	"github.com/hypecast/backend/internal/sessions"
	"github.com/hypecast/backend/internal/worker"
	"github.com/hypecast/backend/pkg/database"
	"github.com/hypecast/backend/pkg/queue"
	"github.com/hypecast/backend/pkg/redis"
	"github.com/hypecast/backend/pkg/response"
	"github.com/hypecast/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ClipsBucket:          cfg.AWS.ClipsBucket,
			ThumbnailsBucket:     cfg.AWS.ThumbnailsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	jwtService := auth.NewJWTService(cfg.JWT.Secret)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub, m)

	// Clips
	renderer := clips.NewHTTPRenderer(cfg.Renderer.BaseURL, time.Duration(cfg.Renderer.TimeoutSeconds)*time.Second, logger)
	clipRepo := clips.NewRepository(pool)
	clipService := clips.NewService(clipRepo, renderer, cfg, m, logger)
	clipHandler := clips.NewHandler(clipService, clipRepo, s3Client, cfg, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	renderWebhook := clips.NewWebhookHandler(clipRepo, jobQueue, hub, m, logger)
	renditionProcessor := worker.NewRenditionProcessor(clipRepo, s3Client, jobQueue, logger)

	// Publishing
	taskRepo := publisher.NewRepository(pool)
	pubRegistry := publisher.NewRegistry()
	connector := publisher.NewConnectorClient(cfg.Publish.ConnectorBaseURL, time.Duration(cfg.Publish.AttemptTimeoutSeconds)*time.Second, logger)
	for _, p := range cfg.Platforms {
		pubRegistry.Register(p.Name, connector.ForPlatform(p.Name))
	}
	// Deferred publishing. The scheduler resubmits due tasks through the
	// dispatcher's immediate path; the closure breaks the construction cycle.
	var dispatcher *publisher.Dispatcher
	schedStore := scheduler.NewRedisStore(rdb.Client, logger)
	sched := scheduler.New(schedStore, func(ctx context.Context, req publisher.PostRequest) {
		dispatcher.DispatchDue(ctx, req)
	}, time.Duration(cfg.Publish.SchedulerPollSeconds)*time.Second, m, logger)
	dispatcher = publisher.NewDispatcher(pubRegistry, taskRepo, sched, cfg.Publish, m, logger)
	sched.Start()
	defer sched.Stop()

	publishHandler := publisher.NewHandler(dispatcher, clipRepo, cfg, logger)

	// Sessions and detection pipelines
	sessionRepo := sessions.NewRepository(pool)
	onMoment := func(ctx context.Context, session *models.StreamSession, moment *models.DetectedMoment, suggestion models.SuggestedClip) {
		if _, err := clipService.FromMoment(ctx, session, moment, suggestion); err != nil {
			logger.Error("create clip for moment",
				zap.String("moment_id", moment.ID.String()), zap.Error(err))
		}
	}
	pipelineRegistry := sessions.NewRegistry(cfg.Detection, hub, onMoment, m, logger)
	sessionHandler := sessions.NewHandler(sessionRepo, pipelineRegistry, clipRepo, sched, hub, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	// Signal ingestion (ingest-key auth in handler, no JWT; pushed by the
	// signal extraction service every tick)
	router.POST("/sessions/:id/signals", sessionHandler.IngestSignals)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Sessions
		api.GET("/sessions", sessionHandler.List)
		api.POST("/sessions", middleware.RequireRole("admin", "producer"), sessionHandler.Create)
		api.GET("/sessions/:id", sessionHandler.Get)
		api.POST("/sessions/:id/end", middleware.RequireRole("admin", "producer"), sessionHandler.End)

		// Clips
		api.POST("/clips", clipHandler.Create)
		api.GET("/clips/:id", clipHandler.Get)
		api.POST("/clips/:id/publish", publishHandler.Publish)
		api.GET("/clips/:id/publish-tasks", publishHandler.Tasks(taskRepo))
	}

	// Webhooks (no JWT; renderer callback)
	router.POST("/webhooks/render-complete", renderWebhook.RenderComplete)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWs(hub, logger, jwtValidate)(c)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (rendition mirroring to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go renditionProcessor.Run(workerCtx)
		logger.Info("rendition worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
