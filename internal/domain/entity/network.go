package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// SupportedNetwork is the canonical name of a blockchain network accepted for
// payment. The set of valid values is closed and defined by the package-level
// network definitions below.
type SupportedNetwork string

// Canonical network names.
const (
	NetworkBase          SupportedNetwork = "base"
	NetworkBaseSepolia   SupportedNetwork = "base-sepolia"
	NetworkAvalancheFuji SupportedNetwork = "avalanche-fuji"
	NetworkAvalanche     SupportedNetwork = "avalanche"
)

const caip2Prefix = "eip155:"

func (n SupportedNetwork) String() string { return string(n) }

// CAIP2 returns the CAIP-2 identifier of the network ("eip155:<chainId>"),
// or the empty string for a value outside the supported set.
func (n SupportedNetwork) CAIP2() string {
	chainID, ok := evmNetworkToChainID[n]
	if !ok {
		return ""
	}
	return caip2ForChainID(chainID)
}

// ChainID returns the numeric chain ID of the network. The second result is
// false for a value outside the supported set.
func (n SupportedNetwork) ChainID() (uint64, bool) {
	chainID, ok := evmNetworkToChainID[n]
	return chainID, ok
}

// NetworkDefinition holds everything the application knows about one payable
// network. This structure is defined at the domain level to be used across
// application and infrastructure layers.
type NetworkDefinition struct {
	Network          SupportedNetwork `json:"network" yaml:"network"`
	ChainID          uint64           `json:"chainId" yaml:"chainId"`
	Name             string           `json:"name" yaml:"name"`
	NativeSymbol     string           `json:"nativeSymbol" yaml:"nativeSymbol"`
	Decimals         int32            `json:"decimals" yaml:"decimals"`
	PrimaryRPCURL    string           `json:"primaryRpcUrl" yaml:"primaryRpcUrl"`
	FallbackRPCURLs  []string         `json:"fallbackRpcUrls" yaml:"fallbackRpcUrls"`
	BlockExplorerURL string           `json:"blockExplorerUrl,omitempty" yaml:"blockExplorerUrl,omitempty"`
	Testnet          bool             `json:"testnet" yaml:"testnet"`
	USDC             AssetInfo        `json:"usdc" yaml:"usdc"`
}

// CAIP2 returns the CAIP-2 identifier of the defined network.
func (d NetworkDefinition) CAIP2() string {
	return caip2ForChainID(d.ChainID)
}

// Predefined network definitions. This var block is the single source of
// truth: every lookup table below is derived from it, never hand-maintained.
var (
	Base = NetworkDefinition{
		Network:          NetworkBase,
		ChainID:          8453,
		Name:             "Base Mainnet",
		NativeSymbol:     "ETH",
		Decimals:         18,
		PrimaryRPCURL:    "https://mainnet.base.org",
		FallbackRPCURLs:  []string{"https://base.publicnode.com", "https://1rpc.io/base"},
		BlockExplorerURL: "https://basescan.org",
		USDC: AssetInfo{
			ChainID:  8453,
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Symbol:   "USDC",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 6,
		},
	}
	BaseSepolia = NetworkDefinition{
		Network:          NetworkBaseSepolia,
		ChainID:          84532,
		Name:             "Base Sepolia",
		NativeSymbol:     "ETH",
		Decimals:         18,
		PrimaryRPCURL:    "https://sepolia.base.org",
		FallbackRPCURLs:  []string{"https://base-sepolia-rpc.publicnode.com"},
		BlockExplorerURL: "https://sepolia.basescan.org",
		Testnet:          true,
		USDC: AssetInfo{
			ChainID:  84532,
			Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Symbol:   "USDC",
			Name:     "USDC",
			Version:  "2",
			Decimals: 6,
		},
	}
	AvalancheFuji = NetworkDefinition{
		Network:          NetworkAvalancheFuji,
		ChainID:          43113,
		Name:             "Avalanche Fuji",
		NativeSymbol:     "AVAX",
		Decimals:         18,
		PrimaryRPCURL:    "https://api.avax-test.network/ext/bc/C/rpc",
		FallbackRPCURLs:  []string{"https://avalanche-fuji-c-chain-rpc.publicnode.com"},
		BlockExplorerURL: "https://testnet.snowtrace.io",
		Testnet:          true,
		USDC: AssetInfo{
			ChainID:  43113,
			Address:  "0x5425890298aed601595a70AB815c96711a31Bc65",
			Symbol:   "USDC",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 6,
		},
	}
	Avalanche = NetworkDefinition{
		Network:          NetworkAvalanche,
		ChainID:          43114,
		Name:             "Avalanche C-Chain",
		NativeSymbol:     "AVAX",
		Decimals:         18,
		PrimaryRPCURL:    "https://api.avax.network/ext/bc/C/rpc",
		FallbackRPCURLs:  []string{"https://avalanche.public-rpc.com", "https://rpc.ankr.com/avalanche"},
		BlockExplorerURL: "https://snowtrace.io",
		USDC: AssetInfo{
			ChainID:  43114,
			Address:  "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
			Symbol:   "USDC",
			Name:     "USDC",
			Version:  "2",
			Decimals: 6,
		},
	}
)

var networkDefinitions = []NetworkDefinition{Base, BaseSepolia, AvalancheFuji, Avalanche}

// Lookup tables derived from networkDefinitions in init. The derivation keeps
// the three representations (canonical name, CAIP-2, chain ID) bijective;
// init panics on any duplicate so a broken definition list cannot ship.
var (
	evmNetworkToChainID = make(map[SupportedNetwork]uint64, len(networkDefinitions))
	caip2ToNetwork      = make(map[string]SupportedNetwork, len(networkDefinitions))
	chainIDToNetwork    = make(map[uint64]SupportedNetwork, len(networkDefinitions))

	// SupportedNetworks lists every canonical network name in definition order.
	SupportedNetworks []SupportedNetwork
)

func init() {
	for _, def := range networkDefinitions {
		if _, dup := evmNetworkToChainID[def.Network]; dup {
			panic(fmt.Sprintf("duplicate network definition: %s", def.Network))
		}
		if _, dup := chainIDToNetwork[def.ChainID]; dup {
			panic(fmt.Sprintf("duplicate chain ID %d in network definitions", def.ChainID))
		}
		evmNetworkToChainID[def.Network] = def.ChainID
		caip2ToNetwork[caip2ForChainID(def.ChainID)] = def.Network
		chainIDToNetwork[def.ChainID] = def.Network
		SupportedNetworks = append(SupportedNetworks, def.Network)
	}
}

func caip2ForChainID(chainID uint64) string {
	return caip2Prefix + strconv.FormatUint(chainID, 10)
}

// UnsupportedNetworkKind classifies why a network identifier was rejected.
type UnsupportedNetworkKind int

const (
	// UnsupportedCAIP2 means the input carried the eip155 prefix but named an
	// unknown chain.
	UnsupportedCAIP2 UnsupportedNetworkKind = iota
	// UnsupportedChainID means the input parsed as an integer matching no
	// supported chain.
	UnsupportedChainID
	// UnsupportedFormat means the input matched none of the recognized
	// identifier forms.
	UnsupportedFormat
)

// UnsupportedNetworkError reports a network identifier outside the supported
// set. The resolver never returns a partial or best-guess result; Kind
// records which identifier form the input was judged against.
type UnsupportedNetworkError struct {
	Input string
	Kind  UnsupportedNetworkKind
}

func (e *UnsupportedNetworkError) Error() string {
	switch e.Kind {
	case UnsupportedCAIP2:
		return fmt.Sprintf("unsupported CAIP-2 network: %s", e.Input)
	case UnsupportedChainID:
		return fmt.Sprintf("unsupported chain ID: %s", e.Input)
	default:
		return fmt.Sprintf("unsupported network format: %s", e.Input)
	}
}

// NormalizeNetwork resolves a caller-supplied network identifier into its
// canonical name. Three forms are accepted: the canonical name itself, a
// CAIP-2 identifier ("eip155:8453") and a bare base-10 chain ID ("8453").
// Matching is exact, with no case folding and no whitespace trimming. Any
// unrecognized input yields an *UnsupportedNetworkError.
func NormalizeNetwork(input string) (SupportedNetwork, error) {
	if _, ok := evmNetworkToChainID[SupportedNetwork(input)]; ok {
		return SupportedNetwork(input), nil
	}
	if strings.HasPrefix(input, caip2Prefix) {
		if network, ok := caip2ToNetwork[input]; ok {
			return network, nil
		}
		return "", &UnsupportedNetworkError{Input: input, Kind: UnsupportedCAIP2}
	}
	if chainID, err := strconv.ParseUint(input, 10, 64); err == nil {
		if network, ok := chainIDToNetwork[chainID]; ok {
			return network, nil
		}
		return "", &UnsupportedNetworkError{Input: input, Kind: UnsupportedChainID}
	}
	return "", &UnsupportedNetworkError{Input: input, Kind: UnsupportedFormat}
}

// IsSupportedNetwork reports whether the identifier resolves to a supported
// network in any accepted form.
func IsSupportedNetwork(input string) bool {
	_, err := NormalizeNetwork(input)
	return err == nil
}

// DefinitionFor returns the definition of a canonical network name.
func DefinitionFor(network SupportedNetwork) (NetworkDefinition, bool) {
	for _, def := range networkDefinitions {
		if def.Network == network {
			return def, true
		}
	}
	return NetworkDefinition{}, false
}

// DefinitionByChainID returns the definition of the network with the given
// chain ID.
func DefinitionByChainID(chainID uint64) (NetworkDefinition, bool) {
	network, ok := chainIDToNetwork[chainID]
	if !ok {
		return NetworkDefinition{}, false
	}
	return DefinitionFor(network)
}

// AllDefinitions returns a copy of every network definition in declaration
// order.
func AllDefinitions() []NetworkDefinition {
	defs := make([]NetworkDefinition, len(networkDefinitions))
	copy(defs, networkDefinitions)
	return defs
}
