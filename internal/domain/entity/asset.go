package entity

import "math/big"

// AssetInfo holds the details of a specific payment token. Name and Version
// are the values of the token contract's EIP-712 signing domain, not display
// strings; signatures bind to them, so they must match the deployed contract
// exactly.
type AssetInfo struct {
	ChainID  uint64 `json:"chainId" yaml:"chainId"`
	Address  string `json:"address" yaml:"address"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version" yaml:"version"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// AssetBalance is the on-chain balance of one wallet in a payment asset.
// Error is set per item so one bad wallet does not void a whole batch lookup.
type AssetBalance struct {
	WalletAddress    string   `json:"walletAddress"`
	Network          string   `json:"network"`
	AssetSymbol      string   `json:"assetSymbol"`
	Decimals         uint8    `json:"decimals"`
	Amount           *big.Int `json:"-"`
	FormattedBalance string   `json:"formattedBalance"`
	Error            error    `json:"-"`
}
