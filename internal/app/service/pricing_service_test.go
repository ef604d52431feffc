package service

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Debug(msg string, args ...any) {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}

func TestAtomicAmount(t *testing.T) {
	s := NewPricingService(testLogger{}, 5)

	amount, err := s.AtomicAmount("$0.01", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10000), amount)

	amount, err = s.AtomicAmount("0.5", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500000), amount)
}

func TestAtomicAmountCachedValueIsIsolated(t *testing.T) {
	s := NewPricingService(testLogger{}, 5)

	first, err := s.AtomicAmount("$0.01", 6)
	require.NoError(t, err)
	first.SetInt64(999)

	second, err := s.AtomicAmount("$0.01", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10000), second)
}

func TestAtomicAmountRejectsGarbage(t *testing.T) {
	s := NewPricingService(testLogger{}, 0)

	for _, money := range []string{"", "$", "abc", "$-1"} {
		_, err := s.AtomicAmount(money, 6)
		assert.Error(t, err, "money %q", money)
	}
}
