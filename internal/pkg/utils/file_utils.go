package utils

import (
	"encoding/json"
	"os"

	"x402_gateway/internal/domain/entity"
)

// LoadAssetFromJSON читает JSON-файл с описанием платежного токена.
func LoadAssetFromJSON(filePath string) (*entity.AssetInfo, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var asset entity.AssetInfo
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}
