package port

import (
	"context"

	"x402_gateway/internal/domain/entity"
)

// BlockchainClient defines the interface for interacting with a blockchain network.
// Implementations will be specific to network types (e.g., EVM, Solana).
type BlockchainClient interface {
	// VerifyChainID checks that the connected node reports the chain ID
	// declared in the network definition.
	VerifyChainID(ctx context.Context) error

	// AssetBalances fetches balances of the given asset for a set of wallets.
	AssetBalances(ctx context.Context, asset entity.AssetInfo, walletAddresses []string) ([]entity.AssetBalance, error)

	// AssetMeta reads the on-chain metadata (name, symbol, decimals, EIP-712
	// version) of an ERC-20 asset.
	AssetMeta(ctx context.Context, assetAddress string) (*entity.AssetInfo, error)

	// Definition returns the network definition associated with this client.
	Definition() entity.NetworkDefinition
}

// NetworkDefinitionProvider defines the interface for providing network definitions.
type NetworkDefinitionProvider interface {
	// GetAllNetworkDefinitions returns all available network definitions as a slice.
	GetAllNetworkDefinitions() []entity.NetworkDefinition

	// GetNetworkDefinitionByName resolves a network identifier (canonical name,
	// CAIP-2 form or decimal chain ID) to its definition.
	// Возвращает типизированную ошибку, если идентификатор не распознан.
	GetNetworkDefinitionByName(nameOrIdentifier string) (entity.NetworkDefinition, error)

	// GetNetworkDefinitionByChainID returns the definition for a chain ID, if known.
	GetNetworkDefinitionByChainID(chainID uint64) (entity.NetworkDefinition, bool)
}

// BlockchainClientProvider defines the interface for providing blockchain clients.
type BlockchainClientProvider interface {
	GetClient(networkDefinition entity.NetworkDefinition) (BlockchainClient, error)
}
