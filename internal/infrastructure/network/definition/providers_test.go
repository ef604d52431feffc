package networkdefinition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402_gateway/internal/domain/entity"
)

type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Debug(msg string, args ...any) {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}

func TestProviderServesAllNetworks(t *testing.T) {
	p := NewNetworkDefinitionProvider(testLogger{}, nil)

	definitions := p.GetAllNetworkDefinitions()
	require.Len(t, definitions, len(entity.SupportedNetworks))

	for _, def := range definitions {
		resolved, err := p.GetNetworkDefinitionByName(def.Network.String())
		require.NoError(t, err)
		assert.Equal(t, def.ChainID, resolved.ChainID)
	}
}

func TestProviderResolvesAllIdentifierForms(t *testing.T) {
	p := NewNetworkDefinitionProvider(testLogger{}, nil)

	for _, identifier := range []string{"base-sepolia", "eip155:84532", "84532"} {
		def, err := p.GetNetworkDefinitionByName(identifier)
		require.NoError(t, err, "identifier %q", identifier)
		assert.Equal(t, entity.NetworkBaseSepolia, def.Network)
	}
}

func TestProviderReturnsTypedResolverError(t *testing.T) {
	p := NewNetworkDefinitionProvider(testLogger{}, nil)

	_, err := p.GetNetworkDefinitionByName("eip155:999999")
	require.Error(t, err)

	var unsupported *entity.UnsupportedNetworkError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, entity.UnsupportedCAIP2, unsupported.Kind)
	assert.Equal(t, "eip155:999999", unsupported.Input)

	_, err = p.GetNetworkDefinitionByName("solana")
	require.Error(t, err)
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, entity.UnsupportedFormat, unsupported.Kind)
}

func TestProviderAppliesAssetOverride(t *testing.T) {
	override := entity.AssetInfo{
		ChainID:  84532,
		Address:  "0x000000000000000000000000000000000000dEaD",
		Symbol:   "TUSD",
		Name:     "Test Stable",
		Version:  "1",
		Decimals: 18,
	}
	p := NewNetworkDefinitionProvider(testLogger{}, map[entity.SupportedNetwork]entity.AssetInfo{
		entity.NetworkBaseSepolia: override,
	})

	def, err := p.GetNetworkDefinitionByName("base-sepolia")
	require.NoError(t, err)
	assert.Equal(t, override, def.USDC)

	unchanged, err := p.GetNetworkDefinitionByName("base")
	require.NoError(t, err)
	assert.Equal(t, entity.Base.USDC, unchanged.USDC)
}

func TestProviderSkipsOverrideWithWrongChainID(t *testing.T) {
	override := entity.AssetInfo{
		ChainID:  1,
		Address:  "0x000000000000000000000000000000000000dEaD",
		Symbol:   "TUSD",
		Name:     "Test Stable",
		Version:  "1",
		Decimals: 18,
	}
	p := NewNetworkDefinitionProvider(testLogger{}, map[entity.SupportedNetwork]entity.AssetInfo{
		entity.NetworkBaseSepolia: override,
	})

	def, err := p.GetNetworkDefinitionByName("base-sepolia")
	require.NoError(t, err)
	assert.Equal(t, entity.BaseSepolia.USDC, def.USDC)
}

func TestProviderByChainID(t *testing.T) {
	p := NewNetworkDefinitionProvider(testLogger{}, nil)

	def, found := p.GetNetworkDefinitionByChainID(43114)
	require.True(t, found)
	assert.Equal(t, entity.NetworkAvalanche, def.Network)

	_, found = p.GetNetworkDefinitionByChainID(1)
	assert.False(t, found)
}

func TestGetAllNetworkDefinitionsReturnsCopy(t *testing.T) {
	p := NewNetworkDefinitionProvider(testLogger{}, nil)

	definitions := p.GetAllNetworkDefinitions()
	definitions[0].USDC.Symbol = "MUTATED"

	fresh := p.GetAllNetworkDefinitions()
	assert.NotEqual(t, "MUTATED", fresh[0].USDC.Symbol)
}
