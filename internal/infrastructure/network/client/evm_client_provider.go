package client

import (
	"fmt"
	"sync"
	"time"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/configloader"
)

const (
	defaultProviderConnectionTimeout = 10 * time.Second
)

// evmClientProvider implements the port.BlockchainClientProvider interface.
type evmClientProvider struct {
	clients           map[string]port.BlockchainClient
	mu                sync.Mutex
	loggerInfo        func(msg string, args ...any)
	loggerError       func(msg string, args ...any)
	connectionTimeout time.Duration
	rpcCallTimeout    time.Duration
	maxWalletsPerCall int
}

// NewEVMClientProvider creates a new EVMClientProvider.
func NewEVMClientProvider(
	cfg *configloader.Config,
	loggerInfo func(msg string, args ...any),
	loggerError func(msg string, args ...any),
) port.BlockchainClientProvider {
	return &evmClientProvider{
		clients:           make(map[string]port.BlockchainClient),
		loggerInfo:        loggerInfo,
		loggerError:       loggerError,
		connectionTimeout: defaultProviderConnectionTimeout,
		rpcCallTimeout:    time.Duration(cfg.RpcClient.DefaultTimeoutMs) * time.Millisecond,
		maxWalletsPerCall: cfg.RpcClient.MaxWalletsPerRPC,
	}
}

// GetClient retrieves a blockchain client for the given network definition.
// It caches clients to avoid reconnecting repeatedly.
func (p *evmClientProvider) GetClient(netDef entity.NetworkDefinition) (port.BlockchainClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	clientKey := string(netDef.Network)
	if client, exists := p.clients[clientKey]; exists {
		p.loggerInfo("Returning cached EVM client", "network", netDef.Network)
		return client, nil
	}

	p.loggerInfo("Creating new EVM client", "network", netDef.Network, "rpc_primary", netDef.PrimaryRPCURL)
	newClient, err := NewEVMClient(netDef, p.connectionTimeout, p.rpcCallTimeout, p.maxWalletsPerCall)
	if err != nil {
		p.loggerError("Failed to create EVM client", "network", netDef.Network, "error", err)
		return nil, fmt.Errorf("failed to create EVM client for %s: %w", netDef.Name, err)
	}

	p.clients[clientKey] = newClient
	p.loggerInfo("Successfully created and cached new EVM client", "network", netDef.Network)
	return newClient, nil
}

// GetAllClients returns all currently cached clients.
func (p *evmClientProvider) GetAllClients() map[string]port.BlockchainClient {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Возвращаем копию, чтобы избежать проблем с конкурентным доступом к карте извне
	copiedClients := make(map[string]port.BlockchainClient, len(p.clients))
	for k, v := range p.clients {
		copiedClients[k] = v
	}
	return copiedClients
}
