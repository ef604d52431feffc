package port

import "x402_gateway/internal/domain/entity"

// AssetProvider defines the interface for fetching payment asset overrides
// loaded from local asset description files.
type AssetProvider interface {
	GetAssetOverrides() (map[entity.SupportedNetwork]entity.AssetInfo, error)
}
