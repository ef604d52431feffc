package provider

import (
	"fmt"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/walletloader"
)

type walletProviderImpl struct {
	loader       port.WalletProvider
	logger       port.Logger
	walletsCache []entity.Wallet
}

// NewWalletProvider creates a caching WalletProvider over the file loader.
func NewWalletProvider(filePath string, logger port.Logger) port.WalletProvider {
	return &walletProviderImpl{
		loader: walletloader.NewWalletFileLoader(filePath, nil, logger.Warn),
		logger: logger,
	}
}

// GetWallets loads payer wallets, caching the result after the first call.
func (p *walletProviderImpl) GetWallets() ([]entity.Wallet, error) {
	if p.walletsCache != nil {
		p.logger.Debug("Returning cached wallets")
		return p.walletsCache, nil
	}

	p.logger.Debug("Loading payer wallets")
	wallets, err := p.loader.GetWallets()
	if err != nil {
		p.logger.Error("Failed to load wallets", "error", err)
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no payer wallets configured")
	}

	p.walletsCache = wallets
	p.logger.Info("Wallets loaded successfully", "count", len(wallets))
	return wallets, nil
}
