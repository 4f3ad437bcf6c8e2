package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brainbox/retailplus/internal/api"
	"github.com/brainbox/retailplus/internal/buildconfig"
	"github.com/brainbox/retailplus/internal/config"
	"github.com/brainbox/retailplus/internal/gateway"
	"github.com/brainbox/retailplus/internal/service"
	"github.com/brainbox/retailplus/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	_ = config.Load()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	logger.Info("starting retailplus agent",
		zap.Any("build", buildconfig.VersionInfo()),
		zap.Any("config", config.Summary()))

	ctx := context.Background()

	kv, err := store.Open(ctx, config.LocalStorePath())
	if err != nil {
		logger.Fatal("failed to open local store", zap.String("path", config.LocalStorePath()), zap.Error(err))
	}
	defer func() { _ = kv.Close() }()

	gw, err := gateway.NewClient(ctx, config.BackendProvider(), config.GatewayOptions(buildconfig.UserAgent()), logger)
	if err != nil {
		logger.Fatal("failed to create backend gateway", zap.Error(err))
	}
	if pg, ok := gw.(*gateway.PostgresClient); ok {
		defer pg.Close()
	}

	app := api.NewApp(ctx, kv, gw, logger)

	// OWNER_KEY/OWNER_SECRET only verify pairs presented to /v1/session/resolve.
	tenant := app.Resolver.Resolve(ctx, service.ResolveRequest{UserID: config.SessionUserID()})
	logger.Info("session ready",
		zap.String("tenant_id", tenant.ID),
		zap.String("tenant", tenant.Name),
		zap.String("state", string(app.Resolver.State())))

	app.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// best-effort push of entries queued since the last cycle
	if app.Monitor.State().CanSync() {
		flushCtx, cancelFlush := context.WithTimeout(ctx, 10*time.Second)
		result := app.Sync.SyncOut(flushCtx)
		cancelFlush()
		logger.Info("final push", zap.Int("succeeded", len(result.Succeeded)), zap.Int("pending", app.Queue.PendingCount()))
	}

	logger.Info("server stopped")
}

// newLogger builds a production JSON logger at LOG_LEVEL. With LOG_FILE set,
// entries are also written to a rotating file.
func newLogger() *zap.Logger {
	level, err := zapcore.ParseLevel(config.LogLevel())
	if err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}

	path := config.LogFile()
	if path == "" {
		return logger
	}

	rotator := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    20,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotator, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
}
