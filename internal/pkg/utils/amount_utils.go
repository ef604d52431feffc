package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatBigInt converts an atomic token amount to a human-readable string,
// considering the given number of decimals.
// Example: amount=1234500000000000000, decimals=18 => "1.2345"
func FormatBigInt(amount *big.Int, decimals uint8) (string, error) {
	if amount == nil {
		return "0.0", nil
	}
	if decimals == 0 {
		return amount.String(), nil
	}

	amountFloat := new(big.Float).SetInt(amount)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value := new(big.Float).Quo(amountFloat, divisor)

	// Format with full precision, then trim trailing zeros and a dangling dot.
	formattedStr := value.Text('f', int(decimals))
	if strings.Contains(formattedStr, ".") {
		formattedStr = strings.TrimRight(formattedStr, "0")
		formattedStr = strings.TrimRight(formattedStr, ".")
	}
	if strings.HasPrefix(formattedStr, ".") {
		formattedStr = "0" + formattedStr
	}
	if formattedStr == "" {
		if amount.Sign() == 0 {
			return "0", nil
		}
		return value.Text('f', 2), fmt.Errorf("formatting resulted in empty string for non-zero value")
	}

	return formattedStr, nil
}

// ParseMoney converts a human money amount ("$0.001", "0.25") into atomic
// token units. A leading dollar sign and surrounding whitespace are allowed;
// fractions finer than the asset's decimals are truncated toward zero, which
// is how quoted prices behave on the wire.
func ParseMoney(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return nil, fmt.Errorf("empty money amount")
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid money amount: %q", amount)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative money amount: %q", amount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

// ParseAtomicAmount parses a non-negative base-10 atomic token amount as it
// appears in maxAmountRequired and authorization values.
func ParseAtomicAmount(s string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid atomic amount: %q", s)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("negative atomic amount: %q", s)
	}
	return value, nil
}
