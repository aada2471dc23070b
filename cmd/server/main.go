package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/app"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/server"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitSchema(ctx, cfg.CollectionName, cfg.EmbeddingDimensions); err != nil {
		logger.Error("Failed to initialize schema", "error", err)
		os.Exit(1)
	}

	stack, err := app.NewStack(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize research stack", "error", err)
		os.Exit(1)
	}

	// Note indexing is optional; the API still runs research without it.
	indexer, err := app.NewKnowledge(ctx, cfg, db.Pool, logger)
	if err != nil {
		logger.Warn("Note indexing disabled", "error", err)
	}

	newEngine := func(jobID uuid.UUID, jobLogger *slog.Logger) (*research.Engine, error) {
		var opts []research.Option
		if indexer != nil {
			opts = append(opts, research.WithIndexer(indexer.ForRun(jobID.String())))
		}
		return stack.Engine(jobLogger, opts...), nil
	}

	svc := server.NewService(db.Pool, cfg.Research(), newEngine, logger)
	svc.LogLevel = cfg.SlogLevel()
	if indexer != nil {
		svc.Knowledge = indexer
	}
	handler := server.NewHandler(svc)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: false,
	}))
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	svc.Shutdown()
}
