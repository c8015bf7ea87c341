package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codesandbox/config"
	"codesandbox/executor"
	"codesandbox/logger"
	"codesandbox/natshandler"
	"codesandbox/pkg"
	"codesandbox/routes"
	"codesandbox/service"
)

const (
	shutdownTimeout   = 15 * time.Second
	natsRequestBudget = 5 * time.Minute
	sweepInterval     = time.Minute
)

func main() {
	cfg := config.LoadConfig()

	zapLogger, err := logger.New(logger.Config{
		Environment:            cfg.Environment,
		Level:                  cfg.LogLevel,
		BetterStackUploadURL:   cfg.BetterStackUploadURL,
		BetterStackSourceToken: cfg.BetterStackSourceToken,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sandbox, closeSandbox, err := service.BuildSandbox(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to build sandbox", zap.String("strategy", cfg.Strategy), zap.Error(err))
	}
	defer closeSandbox()

	workerPool := executor.NewWorkerPool(cfg.MaxWorkers, cfg.JobQueueSize, sandbox.Execute, zapLogger.Named("pool"))
	defer workerPool.Shutdown()

	if cfg.AuthSecret == "" {
		zapLogger.Warn("AUTHSECRET is empty, /exec_code accepts unauthenticated requests")
	}
	limiter := pkg.NewRateLimiter(cfg.Ratelimit, cfg.RatelimitBurst)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, workerPool, routes.Options{
		AuthHeader: cfg.AuthHeader,
		AuthSecret: cfg.AuthSecret,
		Limiter:    limiter,
	}, zapLogger.Named("http"))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("codesandbox"))
		if err != nil {
			zapLogger.Fatal("Failed to connect to NATS",
				zap.String("url", cfg.NatsURL),
				zap.Error(err))
		}
		defer nc.Close()

		handler := natshandler.NewHandler(nc, workerPool, natsRequestBudget, zapLogger.Named("nats"))
		sub, err := handler.Subscribe(cfg.NatsSubject)
		if err != nil {
			zapLogger.Fatal("Failed to subscribe", zap.String("subject", cfg.NatsSubject), zap.Error(err))
		}
		defer func() {
			_ = sub.Unsubscribe()
			handler.Wait()
		}()
		zapLogger.Info("listening on NATS", zap.String("subject", cfg.NatsSubject))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("HTTP server listening",
			zap.String("addr", server.Addr),
			zap.String("strategy", sandbox.StrategyName()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				limiter.Sweep()
			}
		}
	})

	if err := g.Wait(); err != nil {
		zapLogger.Error("server stopped with error", zap.Error(err))
	}
	zapLogger.Info("shutting down")
}
