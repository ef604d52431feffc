package tokenloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/pkg/utils"
)

const defaultAssetDirectoryPath = "data/assets"

// AssetFileLoader implements the port.AssetProvider interface. It scans a
// directory for per-network JSON files describing the payment asset to use
// instead of the built-in USDC deployment.
type AssetFileLoader struct {
	assetDirPath string
	loggerInfo   func(msg string, args ...any)
	loggerWarn   func(msg string, args ...any)
}

// NewAssetLoader creates a new AssetFileLoader.
func NewAssetLoader(assetDirPath string, loggerInfo func(msg string, args ...any), loggerWarn func(msg string, args ...any)) port.AssetProvider {
	return &AssetFileLoader{
		assetDirPath: utils.FirstNonEmpty(assetDirPath, defaultAssetDirectoryPath),
		loggerInfo:   loggerInfo,
		loggerWarn:   loggerWarn,
	}
}

// GetAssetOverrides scans the asset directory, reads <network>.json files and
// validates them against the matching network definition.
// Файл с неизвестной сетью или чужим chain ID пропускается, а не ломает загрузку.
func (l *AssetFileLoader) GetAssetOverrides() (map[entity.SupportedNetwork]entity.AssetInfo, error) {
	overrides := make(map[entity.SupportedNetwork]entity.AssetInfo)

	files, err := os.ReadDir(l.assetDirPath)
	if err != nil {
		if os.IsNotExist(err) {
			if l.loggerInfo != nil {
				l.loggerInfo("Asset override directory does not exist, using built-in assets", "path", l.assetDirPath)
			}
			return overrides, nil
		}
		return nil, fmt.Errorf("failed to read asset directory %s: %w", l.assetDirPath, err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(strings.ToLower(file.Name()), ".json") {
			continue
		}

		networkIdentifier := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		network, err := entity.NormalizeNetwork(networkIdentifier)
		if err != nil {
			if l.loggerWarn != nil {
				l.loggerWarn("Asset file does not match any supported network, skipping", "file", file.Name(), "error", err)
			}
			continue
		}

		definition, ok := entity.DefinitionFor(network)
		if !ok {
			continue
		}

		filePath := filepath.Join(l.assetDirPath, file.Name())
		asset, err := utils.LoadAssetFromJSON(filePath)
		if err != nil {
			if l.loggerWarn != nil {
				l.loggerWarn("Failed to load asset file, skipping", "path", filePath, "error", err)
			}
			continue
		}

		if err := validateAsset(asset, definition); err != nil {
			if l.loggerWarn != nil {
				l.loggerWarn("Asset file failed validation, skipping", "path", filePath, "error", err)
			}
			continue
		}

		if _, duplicate := overrides[network]; duplicate && l.loggerWarn != nil {
			l.loggerWarn("Duplicate asset override for network, keeping the later file", "network", network, "file", file.Name())
		}
		overrides[network] = *asset

		if l.loggerInfo != nil {
			l.loggerInfo("Loaded asset override",
				"network", network,
				"file", file.Name(),
				"asset_address", asset.Address,
				"symbol", asset.Symbol)
		}
	}

	return overrides, nil
}

func validateAsset(asset *entity.AssetInfo, definition entity.NetworkDefinition) error {
	if asset.ChainID != definition.ChainID {
		return fmt.Errorf("asset chain ID %d does not match network chain ID %d", asset.ChainID, definition.ChainID)
	}
	if !common.IsHexAddress(asset.Address) {
		return fmt.Errorf("invalid asset address: %s", asset.Address)
	}
	if asset.Symbol == "" {
		return fmt.Errorf("asset symbol is empty")
	}
	if asset.Name == "" || asset.Version == "" {
		return fmt.Errorf("asset EIP-712 domain name/version is empty")
	}
	if asset.Decimals == 0 {
		return fmt.Errorf("asset decimals is zero")
	}
	return nil
}
