package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"competenest/internal/common/cache"
	"competenest/internal/common/db"
	commonmw "competenest/internal/common/http/middleware"
	"competenest/internal/common/mq"
	"competenest/internal/common/storage"
	"competenest/internal/judge"
	"competenest/internal/notify"
	"competenest/internal/submission/controller"
	"competenest/internal/submission/repository"
	"competenest/internal/submission/service"
	"competenest/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/submission_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()
	dbProvider := db.NewStaticProvider(mysqlDB)

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	hub := notify.NewHub()
	go hub.Run()
	defer hub.Close()

	submissionRepo := repository.NewSubmissionRepository(dbProvider)
	testcaseRepo := repository.NewSubmittedTestcaseRepository(dbProvider)
	problemRepo := repository.NewProblemRepositoryWithTTL(dbProvider, redisCache,
		appCfg.Submission.ProblemCacheTTL, appCfg.Submission.ProblemEmptyTTL)

	submissionService, err := service.NewSubmissionService(service.Config{
		DB:              dbProvider,
		SubmissionRepo:  submissionRepo,
		TestcaseRepo:    testcaseRepo,
		ProblemRepo:     problemRepo,
		Storage:         objStorage,
		MQ:              mqClient,
		Cache:           redisCache,
		Judge:           judge.NewClient(appCfg.Judge),
		Notifier:        hub,
		TestcaseBucket:  appCfg.Submission.TestcaseBucket,
		CallbackBaseURL: appCfg.Submission.CallbackBaseURL,
		FinalEventTopic: appCfg.Submission.FinalEventTopic,
		MaxCodeBytes:    appCfg.Submission.MaxCodeBytes,
		PresignTTL:      appCfg.Submission.PresignTTL,
		DedupeTTL:       appCfg.Submission.DedupeTTL,
		RateLimit:       appCfg.Submission.RateLimit,
		Timeouts:        appCfg.Submission.Timeouts,
	})
	if err != nil {
		logger.Error(context.Background(), "init submission service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg.Server, submissionService, hub)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "submission http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg ServerConfig, submissionService *service.SubmissionService, hub *notify.Hub) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	submissionController := controller.NewSubmissionController(submissionService)
	callbackController := controller.NewCallbackController(submissionService)
	runController := controller.NewRunController(submissionService)
	eventsController := controller.NewEventsController(hub)

	api := router.Group("/api")
	api.POST("/submissions", submissionController.Create)
	api.GET("/submissions/:id", submissionController.Get)
	api.PUT("/submissions/callback/:id", callbackController.Submission)
	api.POST("/contests/:contestID/submissions", submissionController.Create)
	api.PUT("/contests/:contestID/submissions/callback/:id", callbackController.Submission)
	api.POST("/run", runController.Create)
	api.PUT("/run/callback/:topic", callbackController.Run)
	api.GET("/ws", eventsController.Subscribe)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
