package port

import (
	"context"

	"x402_gateway/internal/domain/entity"
)

// PayerService defines the interface for paying for protected resources
// on behalf of the configured wallets.
type PayerService interface {
	// PayAllResources runs the payment flow for every request item with every
	// wallet and returns per-wallet summaries plus the individual failures.
	PayAllResources(ctx context.Context, items []entity.PaymentRequestItem) ([]entity.PaymentSummary, []entity.PaymentError)

	// FetchAssetBalances reads the payment asset balances of all wallets on
	// the networks touched by the last run.
	FetchAssetBalances(ctx context.Context) ([]entity.AssetBalance, error)

	// GetFailedResources returns resource URLs that failed during the last run.
	GetFailedResources() []string
}
