package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"training-pipeline-service/internal/adapters/primary/http/handlers"
	"training-pipeline-service/internal/adapters/primary/http/middleware"
	"training-pipeline-service/internal/adapters/secondary/ollama"
	"training-pipeline-service/internal/adapters/secondary/postgres"
	"training-pipeline-service/internal/adapters/secondary/quota"
	"training-pipeline-service/internal/adapters/secondary/trainer"
	"training-pipeline-service/internal/config"
	output "training-pipeline-service/internal/core/ports/output"
	"training-pipeline-service/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	initLogger(cfg)

	// Create database pool
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("parse db config: %v", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		log.Fatalf("create db pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatalf("ping db: %v", err)
	}
	log.Info("database connection established")

	// Secondary Adapters (Output Ports)
	runRepo := postgres.NewTrainingRunRepository(pool)
	eventRepo := postgres.NewRunEventRepository(pool)
	reportRepo := postgres.NewEvaluationReportRepository(pool)
	deploymentRepo := postgres.NewDeploymentRepository(pool)
	datasetReader := postgres.NewDatasetVersionReader(pool)
	auditRepo := postgres.NewAuditLogRepository(pool)

	// Execution backend (simulator, command, or kubejob per config)
	backend, err := trainer.New(cfg)
	if err != nil {
		log.Fatalf("init execution backend: %v", err)
	}
	log.Infof("execution backend: %s", cfg.Trainer.Backend)

	// Quota Client (Optional - based on config)
	var quotaClient output.QuotaClient
	if cfg.Quota.Enabled {
		quotaClient = quota.NewClient(&cfg.Quota)
		log.Info("quota client initialized")
	} else {
		log.Info("quota enforcement disabled")
	}

	// Inference Backend (Optional - based on config)
	var inferenceBackend output.InferenceBackend
	if cfg.Inference.Backend == "ollama" {
		inferenceBackend = ollama.NewClient(&cfg.Inference)
		log.Info("ollama inference backend initialized")
	} else {
		log.Info("inference backend disabled, using composed fallback answers")
	}

	// Core Services (Application Layer)
	estimator := services.NewPreflightEstimator(cfg.Preflight, cfg.SupportedModels)
	evaluator := services.NewEvaluationService(reportRepo, cfg.Evaluation)
	packager := services.NewPackager()
	orchestrator := services.NewOrchestrator(
		runRepo, eventRepo, datasetReader, auditRepo,
		quotaClient, backend, estimator, evaluator, packager, cfg.Trainer,
	)
	deploymentSvc := services.NewDeploymentService(deploymentRepo, runRepo, auditRepo, inferenceBackend, cfg.Inference)

	// Worker pool claims queued runs and drives them to a terminal state
	workers := services.NewWorkerPool(orchestrator, cfg.Worker)
	workers.Start(context.Background())

	// Primary Adapter (HTTP Handlers)
	h := handlers.New(orchestrator, estimator, evaluator, deploymentSvc)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), gin.Recovery())

	api := router.Group("/api/v1/training-pipeline")
	api.Use(middleware.Identity())
	h.RegisterRoutes(api)

	// Health check with DB ping
	router.GET("/healthz", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	workers.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced shutdown: %v", err)
	}

	log.Info("server stopped")
}

func initLogger(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
