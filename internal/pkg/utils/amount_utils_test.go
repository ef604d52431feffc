package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBigInt(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals uint8
		want     string
	}{
		{"fractional", big.NewInt(1234500000000000000), 18, "1.2345"},
		{"usdc milli", big.NewInt(1000), 6, "0.001"},
		{"usdc cent", big.NewInt(10000), 6, "0.01"},
		{"whole usdc", big.NewInt(2500000), 6, "2.5"},
		{"zero", big.NewInt(0), 6, "0"},
		{"nil", nil, 6, "0.0"},
		{"no decimals", big.NewInt(42), 0, "42"},
		{"single atomic unit", big.NewInt(1), 18, "0.000000000000000001"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatBigInt(tc.amount, tc.decimals)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     int64
	}{
		{"dollar prefixed", "$0.001", 6, 1000},
		{"plain decimal", "0.25", 6, 250000},
		{"whole dollar", "$1", 6, 1000000},
		{"spaces tolerated", "  $0.10 ", 6, 100000},
		{"finer than decimals truncates", "0.0000015", 6, 1},
		{"zero", "$0", 6, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseMoney(tc.amount, tc.decimals)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Int64())
		})
	}
}

func TestParseMoneyRejections(t *testing.T) {
	for _, amount := range []string{"", "$", "abc", "$-1", "-0.5", "$1.2.3"} {
		t.Run(amount, func(t *testing.T) {
			_, err := ParseMoney(amount, 6)
			assert.Error(t, err)
		})
	}
}

func TestParseAtomicAmount(t *testing.T) {
	got, err := ParseAtomicAmount("1000")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Int64())

	got, err = ParseAtomicAmount("0")
	require.NoError(t, err)
	assert.Zero(t, got.Sign())

	for _, s := range []string{"", "-5", "0x10", "1.5", "1e6"} {
		_, err := ParseAtomicAmount(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestBatchStrings(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	batches := BatchStrings(items, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"e"}, batches[2])

	assert.Len(t, BatchStrings(items, 0), 1, "non-positive size keeps one batch")
	assert.Empty(t, BatchStrings(nil, 3))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", FirstNonEmpty("", "b", "c"))
	assert.Equal(t, "a", FirstNonEmpty("a"))
	assert.Empty(t, FirstNonEmpty("", ""))
	assert.Empty(t, FirstNonEmpty())
}
