package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"

	"x402_gateway/internal/app/provider"
	"x402_gateway/internal/app/service"
	"x402_gateway/internal/client"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/configloader"
	networkdefinition "x402_gateway/internal/infrastructure/network/definition"
	"x402_gateway/internal/infrastructure/restapi"
	"x402_gateway/internal/pkg/logger"
	"x402_gateway/internal/pkg/utils"
	"x402_gateway/pkg/metrics"
)

// cdpFacilitatorURL is used when CDP credentials are configured and no
// explicit facilitator URL overrides it.
const cdpFacilitatorURL = "https://api.cdp.coinbase.com/platform/v2/x402"

func main() {
	// Bootstrap logger for the earliest startup phase, before zap is ready.
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer zapLogger.Sync()

	slogHandler := zapslog.NewHandler(zapLogger.Core(), &zapslog.HandlerOptions{})
	slog.SetDefault(slog.New(slogHandler))

	cfgPath := utils.GetEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := configloader.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Warnf("Invalid log level in config: %s. Defaulting to Info.", cfg.Logging.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Infof("Failed to log to file, using default stdout: %v", err)
		}
	}

	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	network, err := entity.NormalizeNetwork(cfg.Payment.Network)
	if err != nil {
		zapLogger.Fatal("Configured payment network is not supported",
			zap.String("network", cfg.Payment.Network), zap.Error(err))
	}
	if !common.IsHexAddress(cfg.Payment.PayTo) {
		zapLogger.Fatal("Configured payTo is not a valid address", zap.String("payTo", cfg.Payment.PayTo))
	}
	cfg.Payment.Network = network.String()

	metrics.MustRegisterMetrics()

	appLogger := logger.NewSlogAdapter()

	assetProvider := provider.NewAssetProvider(cfg.Assets.Dir, appLogger)
	assetOverrides, err := assetProvider.GetAssetOverrides()
	if err != nil {
		zapLogger.Warn("Failed to load payment asset overrides", zap.Error(err))
		assetOverrides = nil
	}
	netDefProvider := networkdefinition.NewNetworkDefinitionProvider(appLogger, assetOverrides)

	// Facilitator selection. CDP settles real USDC, so it only accepts the
	// Base networks.
	var facilitatorAuth client.AuthProvider
	facilitatorURL := cfg.Facilitator.BaseURL
	if cfg.CDP.Enabled {
		if network != entity.NetworkBase && network != entity.NetworkBaseSepolia {
			zapLogger.Fatal("CDP facilitator supports only the Base networks",
				zap.String("network", network.String()))
		}
		credentials, err := client.NewCDPCredentials(cfg.CDP.KeyID, cfg.CDP.KeySecret)
		if err != nil {
			zapLogger.Fatal("Failed to load CDP credentials", zap.Error(err))
		}
		facilitatorAuth = credentials
		if facilitatorURL == configloader.DefaultFacilitatorURL {
			facilitatorURL = cdpFacilitatorURL
		}
		zapLogger.Info("Using CDP facilitator", zap.String("url", facilitatorURL))
	} else {
		zapLogger.Info("Using facilitator", zap.String("url", facilitatorURL))
	}

	facilitatorClient := client.NewFacilitatorClient(
		facilitatorURL,
		time.Duration(cfg.Facilitator.RequestTimeoutMillis)*time.Millisecond,
		zapLogger,
		facilitatorAuth,
		cfg.Facilitator.MaxRetries,
		time.Duration(cfg.Facilitator.RetryDelayMs)*time.Millisecond,
	)

	gateService := service.NewPaymentGateService(facilitatorClient, appLogger, cfg.Gate.ReplayCleanupMinutes)
	pricingService := service.NewPricingService(appLogger, cfg.Pricing.CacheTTLMinutes)

	paymentGate := restapi.NewPaymentGate(gateService, pricingService, netDefProvider, cfg.Payment, appLogger)
	resourceHandler := restapi.NewResourceHandler(netDefProvider, gateService, cfg.Payment)

	router := restapi.SetupRouter(resourceHandler, paymentGate, cfg, zapLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info(fmt.Sprintf("Payment server starting on port %s", cfg.Server.Port),
			zap.String("network", cfg.Payment.Network),
			zap.String("payTo", cfg.Payment.PayTo))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exiting")
}
