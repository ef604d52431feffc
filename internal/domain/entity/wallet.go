package entity

// Wallet is a payer identity. The private key stays in memory only and never
// serializes.
type Wallet struct {
	Address       string `json:"address" yaml:"address"`
	PrivateKeyHex string `json:"-" yaml:"-"`
}
