package entity

import "math/big"

// PaymentReceipt records one settled payment made by a wallet for a resource.
type PaymentReceipt struct {
	PayerAddress    string   `json:"-" yaml:"payerAddress"`
	Resource        string   `json:"resource" yaml:"resource"`
	Network         string   `json:"network" yaml:"network"`
	ChainID         string   `json:"chainId" yaml:"chainId"`
	AssetAddress    string   `json:"assetAddress" yaml:"assetAddress"`
	AssetSymbol     string   `json:"assetSymbol" yaml:"assetSymbol"`
	Decimals        uint8    `json:"decimals" yaml:"decimals"`
	Amount          *big.Int `json:"-" yaml:"amount"`
	FormattedAmount string   `json:"formattedAmount" yaml:"formattedAmount"`
	Transaction     string   `json:"transaction" yaml:"transaction"`
	StatusCode      int      `json:"statusCode" yaml:"statusCode"`
}

// PaymentSummary aggregates the settled payments of one payer.
type PaymentSummary struct {
	PayerAddress      string                      `json:"payerAddress"`
	ReceiptsByNetwork map[string][]PaymentReceipt `json:"receiptsByNetwork"`
	TotalsByAsset     map[string]ReceiptTotal     `json:"totalsByAsset"`
}

// ReceiptTotal is the summed amount paid in a single asset, keyed in
// PaymentSummary by the asset symbol.
type ReceiptTotal struct {
	AssetSymbol     string   `json:"assetSymbol"`
	Amount          *big.Int `json:"-"`
	FormattedAmount string   `json:"formattedAmount"`
}
