package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voltlog/voltlog/internal/config"
	"github.com/voltlog/voltlog/internal/remote"
	"github.com/voltlog/voltlog/internal/service"
	"github.com/voltlog/voltlog/internal/store"
	"github.com/voltlog/voltlog/internal/syncer"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Voltlog agent",
		zap.String("state_file", cfg.StateFile),
		zap.Duration("sync_interval", cfg.SyncInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 本地状态存储
	fileStore := store.NewFileStore(cfg.StateFile)

	// 远端客户端 + 同步协调器
	client := remote.NewClient(cfg.SyncProjectURL, cfg.SyncAPIKey)
	coordinator := syncer.NewCoordinator(client, logger)

	syncCfg := syncer.Config{
		ProjectURL: cfg.SyncProjectURL,
		APIKey:     cfg.SyncAPIKey,
	}

	svc, err := service.NewLedgerService(logger, fileStore, coordinator, syncCfg)
	if err != nil {
		logger.Fatal("Failed to load local state", zap.Error(err))
	}

	// 未配置远端时只维护本地账本
	if cfg.SyncProjectURL == "" || cfg.SyncAPIKey == "" {
		logger.Warn("Sync not configured, running in local-only mode")
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	// SIGHUP 立即触发一次同步
	immediate := make(chan os.Signal, 1)
	signal.Notify(immediate, syscall.SIGHUP)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	runSync(ctx, logger, svc)

	for {
		select {
		case <-ticker.C:
			runSync(ctx, logger, svc)

		case <-immediate:
			logger.Info("Received SIGHUP, syncing now")
			runSync(ctx, logger, svc)

		case <-quit:
			logger.Info("Shutting down agent...")
			cancel()
			logger.Info("Agent exited")
			return
		}
	}
}

// runSync 执行一次同步，失败仅记录日志
func runSync(ctx context.Context, logger *zap.Logger, svc *service.LedgerService) {
	start := time.Now()

	err := svc.Sync(ctx)
	switch {
	case err == nil:
		logger.Info("Sync completed", zap.Duration("elapsed", time.Since(start)))
	case errors.Is(err, syncer.ErrConfigMissing):
		logger.Debug("Sync skipped, remote not configured")
	case errors.Is(err, service.ErrSyncBusy):
		logger.Warn("Sync already in progress, skipped")
	default:
		logger.Error("Sync failed", zap.Error(err))
	}
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}
