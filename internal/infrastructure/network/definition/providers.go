package networkdefinition

import (
	"fmt"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
)

// NetworkDefinitionProvider exposes the payable network definitions with any
// configured asset overrides applied. The definition list itself lives in the
// domain layer; this provider is the seam where deployment-specific asset
// files get merged in.
type NetworkDefinitionProvider struct {
	logger      port.Logger
	definitions []entity.NetworkDefinition
	byNetwork   map[entity.SupportedNetwork]entity.NetworkDefinition
}

// NewNetworkDefinitionProvider creates a new NetworkDefinitionProvider. Asset
// overrides whose chain ID does not match their network are skipped with a
// warning rather than failing startup.
func NewNetworkDefinitionProvider(log port.Logger, assetOverrides map[entity.SupportedNetwork]entity.AssetInfo) *NetworkDefinitionProvider {
	p := &NetworkDefinitionProvider{
		logger:      log,
		definitions: make([]entity.NetworkDefinition, 0),
		byNetwork:   make(map[entity.SupportedNetwork]entity.NetworkDefinition),
	}

	for _, def := range entity.AllDefinitions() {
		if override, ok := assetOverrides[def.Network]; ok {
			if override.ChainID != def.ChainID {
				log.Warn(fmt.Sprintf("Asset override for network '%s' targets chain %d but the network is chain %d. Skipping.",
					def.Network, override.ChainID, def.ChainID))
			} else {
				def.USDC = override
				log.Info(fmt.Sprintf("Asset override applied for network '%s': %s (%s)",
					def.Network, override.Symbol, override.Address))
			}
		}
		p.definitions = append(p.definitions, def)
		p.byNetwork[def.Network] = def
	}

	log.Info(fmt.Sprintf("NetworkDefinitionProvider initialized. Active networks: %d", len(p.definitions)))
	return p
}

// GetAllNetworkDefinitions returns the list of active network definitions.
func (p *NetworkDefinitionProvider) GetAllNetworkDefinitions() []entity.NetworkDefinition {
	if p == nil {
		return []entity.NetworkDefinition{}
	}
	defsCopy := make([]entity.NetworkDefinition, len(p.definitions))
	copy(defsCopy, p.definitions)
	return defsCopy
}

// GetNetworkDefinitionByName resolves any accepted identifier form (canonical
// name, CAIP-2 or bare chain ID) to its active definition. The error is the
// resolver's *entity.UnsupportedNetworkError, so callers can report exactly
// which form was rejected.
func (p *NetworkDefinitionProvider) GetNetworkDefinitionByName(identifier string) (entity.NetworkDefinition, error) {
	network, err := entity.NormalizeNetwork(identifier)
	if err != nil {
		return entity.NetworkDefinition{}, err
	}
	def, ok := p.byNetwork[network]
	if !ok {
		return entity.NetworkDefinition{}, fmt.Errorf("network %s resolved but has no active definition", network)
	}
	return def, nil
}

// GetNetworkDefinitionByChainID returns a specific network definition by its
// chain ID if it's active.
func (p *NetworkDefinitionProvider) GetNetworkDefinitionByChainID(chainID uint64) (entity.NetworkDefinition, bool) {
	if p == nil {
		return entity.NetworkDefinition{}, false
	}
	for _, def := range p.definitions {
		if def.ChainID == chainID {
			return def, true
		}
	}
	return entity.NetworkDefinition{}, false
}
