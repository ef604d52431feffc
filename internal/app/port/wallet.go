package port

import "x402_gateway/internal/domain/entity"

// WalletProvider defines the interface for fetching payer wallets.
type WalletProvider interface {
	GetWallets() ([]entity.Wallet, error)
}
