package provider

import (
	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/tokenloader"
)

type assetProviderImpl struct {
	logger         port.Logger
	loader         port.AssetProvider
	overridesCache map[entity.SupportedNetwork]entity.AssetInfo // Cache loaded overrides
}

// NewAssetProvider creates a caching AssetProvider over the file loader.
func NewAssetProvider(assetDir string, logger port.Logger) port.AssetProvider {
	return &assetProviderImpl{
		logger: logger,
		loader: tokenloader.NewAssetLoader(assetDir, logger.Info, logger.Warn),
	}
}

// GetAssetOverrides loads per-network payment asset overrides from disk.
// It caches the results after the first successful load.
func (p *assetProviderImpl) GetAssetOverrides() (map[entity.SupportedNetwork]entity.AssetInfo, error) {
	if p.overridesCache != nil {
		p.logger.Debug("Returning cached asset overrides")
		return p.overridesCache, nil
	}

	overrides, err := p.loader.GetAssetOverrides()
	if err != nil {
		p.logger.Error("Failed to load asset overrides", "error", err)
		return nil, err
	}

	p.overridesCache = overrides
	p.logger.Info("Asset overrides loaded and cached successfully", "count", len(overrides))
	return overrides, nil
}
