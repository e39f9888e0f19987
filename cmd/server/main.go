package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"eduai-sync-service/internal/api"
	"eduai-sync-service/internal/config"
	"eduai-sync-service/internal/logger"
	"eduai-sync-service/internal/notify"
	"eduai-sync-service/internal/remote"
	"eduai-sync-service/internal/sync"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting EduAI Sync Service")

	// Remote row-API client
	remoteClient := remote.NewHTTPClient(cfg.Remote)

	// Init Sync Manager (local store, mutation queue, connectivity monitor, engine)
	syncManager, err := sync.NewManager(cfg, remoteClient, notify.LogNotifier{})
	if err != nil {
		logger.Log.Fatal("Failed to init sync manager", zap.Error(err))
	}
	defer syncManager.Close()

	syncManager.Start()

	// Scheduled drains as a backstop for missed transitions
	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager.Engine())
	scheduler.Start()
	defer scheduler.Stop()

	// Init API
	handler := api.NewHandler(syncManager, cfg.Server.AuthToken)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	syncManager.Stop()
}
