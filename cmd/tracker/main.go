// Package main provides the carbon tracker service entry point.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carbon-tracker/internal/adapter"
	"github.com/carbon-tracker/internal/api"
	"github.com/carbon-tracker/internal/config"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/notify"
	"github.com/carbon-tracker/internal/registry"
	"github.com/carbon-tracker/internal/service"
	"github.com/carbon-tracker/internal/session"
	"github.com/carbon-tracker/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Wallet session: an empty key runs the tracker in read-only mode
	wallet, err := session.NewWalletSession(cfg.Wallet.PrivateKey)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create wallet session")
	}
	if wallet.IsConnected() {
		logger.WithField("actor", wallet.ActorAddress()).Info("Wallet session active")
	} else {
		logger.Info("No wallet key configured, running read-only")
	}

	// Ledger gateway
	ledger, err := adapter.NewEVMLedger(&adapter.EVMLedgerConfig{
		RPCURL:            cfg.Chain.RPCURL,
		ContractAddress:   cfg.Chain.ContractAddress,
		ChainID:           cfg.Chain.ChainID,
		PrivateKey:        wallet.PrivateKey(),
		RequestsPerSecond: float64(cfg.Chain.RequestsPerSec),
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ledger")
	}
	defer ledger.Close()
	logger.WithFields(map[string]interface{}{
		"rpc":      cfg.Chain.RPCURL,
		"contract": cfg.Chain.ContractAddress,
		"chainId":  cfg.Chain.ChainID,
	}).Info("Ledger gateway initialized")

	// FHE relayer gateway
	fheClient, err := adapter.NewFHEClient(&adapter.FHEClientConfig{
		BaseURL: cfg.Relayer.BaseURL,
		Timeout: cfg.Relayer.Timeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create relayer client")
	}

	// Optional snapshot cache. Failure to reach Redis is not fatal; the
	// tracker just starts with an empty snapshot.
	var snapshotStore registry.SnapshotStore
	if cfg.Cache.Enabled {
		cache, err := storage.NewSnapshotCache(&storage.SnapshotCacheConfig{
			Host:     cfg.Cache.Host,
			Port:     cfg.Cache.Port,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			logger.WithError(err).Warn("Snapshot cache unavailable, continuing without it")
		} else {
			snapshotStore = cache
			defer cache.Close()
		}
	}

	// Shared status notifier and operation history
	notifier := notify.NewNotifier()
	history := notify.NewHistoryLog()

	notifier.Subscribe(func(status notify.Status) {
		if !status.Visible {
			return
		}
		logger.WithFields(map[string]interface{}{
			"kind":    string(status.Kind),
			"message": status.Message,
		}).Info("Transaction status")
	})

	// Record registry
	reg, err := registry.NewRegistry(ledger, snapshotStore, notifier, history)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create record registry")
	}

	// Session bootstrap gates encrypt and decrypt behind FHE initialization
	bootstrap, err := session.NewBootstrap(fheClient, notifier, history)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create session bootstrap")
	}

	// Workflow orchestrator
	recordService, err := service.NewRecordService(&service.RecordServiceConfig{
		Session:   wallet,
		Bootstrap: bootstrap,
		Reader:    ledger,
		Writer:    ledger,
		Encryptor: fheClient,
		Oracle:    fheClient,
		Registry:  reg,
		Notifier:  notifier,
		History:   history,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create record service")
	}

	// Connect-time startup: prime from cache, initialize FHE, first refresh
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 2*time.Minute)
	reg.Prime(startupCtx)
	if wallet.IsConnected() {
		if err := bootstrap.OnConnect(startupCtx); err != nil {
			logger.WithError(err).Warn("FHE initialization failed, encrypt and decrypt are unavailable")
		}
	}
	if _, err := reg.Refresh(startupCtx); err != nil {
		logger.WithError(err).Warn("Initial record load failed")
	}
	cancelStartup()

	// HTTP API server
	serverConfig := &api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server := api.NewServer(serverConfig, recordService, reg, notifier, history)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Server stopped")
}
