package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"

	"x402_gateway/internal/app/provider"
	"x402_gateway/internal/app/service"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/configloader"
	"x402_gateway/internal/infrastructure/httpclient"
	clientprovider "x402_gateway/internal/infrastructure/network/client"
	networkdefinition "x402_gateway/internal/infrastructure/network/definition"
	"x402_gateway/internal/pkg/logger"
	"x402_gateway/internal/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to initialize zap logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	cfgPath := utils.GetEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := configloader.Load(cfgPath)
	if err != nil {
		zapLogger.Fatal("Не удалось загрузить конфигурацию", zap.String("файл", cfgPath), zap.Error(err))
	}

	// slog поверх zap: весь код приложения пишет через slog, вывод единый.
	slogHandler := slogzap.Option{
		Level:  slogLevel(cfg.Logging.Level),
		Logger: zapLogger,
	}.NewZapHandler()
	slog.SetDefault(slog.New(slogHandler))

	logger.Info("Платежный клиент запускается...")
	appLogger := logger.NewSlogAdapter()

	assetProvider := provider.NewAssetProvider(cfg.Assets.Dir, appLogger)
	assetOverrides, err := assetProvider.GetAssetOverrides()
	if err != nil {
		logger.Warn("Не удалось загрузить переопределения платежных активов", "ошибка", err)
		assetOverrides = nil
	}

	netDefProvider := networkdefinition.NewNetworkDefinitionProvider(appLogger, assetOverrides)
	walletProvider := provider.NewWalletProvider(cfg.Wallets.File, appLogger)
	clientProvider := clientprovider.NewEVMClientProvider(cfg, appLogger.Info, appLogger.Error)
	logger.Info("BlockchainClientProvider инициализирован.")

	resourceClient := httpclient.NewResourceClient(
		time.Duration(cfg.Payer.RequestTimeoutMillis)*time.Millisecond,
		zapLogger.Named("ResourceClient"),
	)
	pricingService := service.NewPricingService(appLogger, cfg.Pricing.CacheTTLMinutes)

	payerService := service.NewPayerService(
		walletProvider,
		netDefProvider,
		clientProvider,
		resourceClient,
		pricingService,
		appLogger,
		cfg,
	)
	logger.Info("PayerService успешно инициализирован.")

	items := paymentItems(cfg)
	if len(items) == 0 {
		logger.Fatal("Не настроен ни один платный ресурс", "resourceBaseURL", cfg.Payer.ResourceBaseURL)
	}
	logger.Info("Запуск оплаты ресурсов", "количество", len(items), "лимит_параллельных", cfg.Payer.MaxConcurrentRequests)

	summaries, paymentErrors := payerService.PayAllResources(ctx, items)

	if len(paymentErrors) > 0 {
		logger.Warn("Во время оплаты возникли ошибки", "количество_ошибок", len(paymentErrors))
		for i, paymentErr := range paymentErrors {
			logger.Warn("Ошибка оплаты",
				"индекс", i+1,
				"кошелек", paymentErr.PayerAddress,
				"ресурс", paymentErr.Resource,
				"статус", paymentErr.StatusCode,
				"сообщение", paymentErr.Message)
		}
	}

	for _, summary := range summaries {
		logger.Info("Итог по кошельку", "кошелек", summary.PayerAddress)
		for network, receipts := range summary.ReceiptsByNetwork {
			for _, receipt := range receipts {
				logger.Info("  Оплачен ресурс",
					"сеть", network,
					"ресурс", receipt.Resource,
					"сумма", receipt.FormattedAmount,
					"актив", receipt.AssetSymbol,
					"транзакция", receipt.Transaction)
			}
		}
		for _, total := range summary.TotalsByAsset {
			logger.Info("  Всего оплачено", "актив", total.AssetSymbol, "сумма", total.FormattedAmount)
		}
	}

	if failed := payerService.GetFailedResources(); len(failed) > 0 {
		logger.Warn("Ресурсы, оставшиеся неоплаченными", "количество", len(failed), "ресурсы", strings.Join(failed, ", "))
	}

	// Балансы после оплат: видно, сколько реально списано по сетям.
	balances, err := payerService.FetchAssetBalances(ctx)
	if err != nil {
		logger.Warn("Не удалось получить балансы после оплат", "ошибка", err)
	}
	for _, balance := range balances {
		if balance.Error != nil {
			logger.Warn("  Баланс недоступен", "кошелек", balance.WalletAddress, "сеть", balance.Network, "ошибка", balance.Error)
			continue
		}
		logger.Info("  Баланс",
			"кошелек", balance.WalletAddress,
			"сеть", balance.Network,
			"актив", balance.AssetSymbol,
			"количество", balance.FormattedBalance)
	}

	logger.Info("Платежный клиент завершил работу.",
		"итогов", len(summaries),
		"ошибок", len(paymentErrors))
}

// paymentItems собирает список платных ресурсов из конфигурации. Без явных
// endpoints оплачивается ресурс /acp-budget с бюджетом по умолчанию.
func paymentItems(cfg *configloader.Config) []entity.PaymentRequestItem {
	base := strings.TrimRight(cfg.Payer.ResourceBaseURL, "/")
	if base == "" {
		return nil
	}

	endpoints := cfg.Payer.Endpoints
	if len(endpoints) == 0 {
		endpoints = []configloader.EndpointConfig{
			{Path: "/acp-budget", Method: http.MethodGet, Budget: cfg.Payment.DefaultBudget},
		}
	}

	items := make([]entity.PaymentRequestItem, 0, len(endpoints))
	for _, endpoint := range endpoints {
		method := strings.ToUpper(utils.FirstNonEmpty(endpoint.Method, http.MethodGet))
		requestType := entity.StaticPriceRequest
		if endpoint.Budget != "" {
			requestType = entity.BudgetPriceRequest
		}
		items = append(items, entity.PaymentRequestItem{
			ID:        uuid.NewString(),
			Type:      requestType,
			Method:    method,
			Resource:  base + "/" + strings.TrimLeft(endpoint.Path, "/"),
			Budget:    endpoint.Budget,
			MaxAmount: endpoint.MaxAmount,
		})
	}
	return items
}

func slogLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
