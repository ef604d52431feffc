package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/pkg/utils"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EVMClient implements the port.BlockchainClient interface for EVM-compatible chains.
type EVMClient struct {
	ethClient         *ethclient.Client
	netDef            entity.NetworkDefinition
	rpcCallTimeout    time.Duration
	maxWalletsPerCall int
}

// Minimal ERC20 ABI: balanceOf plus the metadata views. version is the
// FiatToken extension carrying the EIP-712 domain version.
const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"},{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"},{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"payable":false,"stateMutability":"view","type":"function"},{"constant":true,"inputs":[],"name":"version","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"}]`

var (
	parsedERC20ABI  abi.ABI
	parsedERC20Once sync.Once
	balanceOfID     []byte
)

func initParsedERC20ABI() {
	parsedERC20Once.Do(func() {
		var err error
		parsedERC20ABI, err = abi.JSON(strings.NewReader(erc20ABI))
		if err != nil {
			// This is a critical error during initialization, panic is appropriate
			panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
		}
		balanceOfMethod, ok := parsedERC20ABI.Methods["balanceOf"]
		if !ok {
			panic("balanceOf method not found in parsed ERC20 ABI")
		}
		balanceOfID = balanceOfMethod.ID
	})
}

// NewEVMClient creates a new EVM client for the given network definition,
// trying the primary RPC URL first and the fallbacks in order.
func NewEVMClient(netDef entity.NetworkDefinition, connectionTimeout, rpcCallTimeout time.Duration, maxWalletsPerCall int) (port.BlockchainClient, error) {
	initParsedERC20ABI()
	rpcURLs := append([]string{netDef.PrimaryRPCURL}, netDef.FallbackRPCURLs...)
	var lastErr error

	for _, rpcURL := range rpcURLs {
		ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)

		client, err := ethclient.DialContext(ctx, rpcURL)
		cancel()

		if err == nil {
			return &EVMClient{
				ethClient:         client,
				netDef:            netDef,
				rpcCallTimeout:    rpcCallTimeout,
				maxWalletsPerCall: maxWalletsPerCall,
			}, nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}

	return nil, fmt.Errorf("all RPC connection attempts failed for network %s: %w", netDef.Name, lastErr)
}

// VerifyChainID checks that the connected RPC endpoint really serves the
// chain this client was built for.
func (c *EVMClient) VerifyChainID(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	chainID, err := c.ethClient.ChainID(callCtx)
	if err != nil {
		return fmt.Errorf("failed to fetch chain ID for %s: %w", c.netDef.Name, err)
	}
	if chainID.Uint64() != c.netDef.ChainID {
		return fmt.Errorf("chain ID mismatch for %s: expected %d, got %s", c.netDef.Name, c.netDef.ChainID, chainID)
	}
	return nil
}

// AssetBalances fetches the asset balance of every wallet using JSON-RPC
// batch requests, chunked to keep individual batches within provider limits.
func (c *EVMClient) AssetBalances(ctx context.Context, asset entity.AssetInfo, walletAddresses []string) ([]entity.AssetBalance, error) {
	if len(walletAddresses) == 0 {
		return []entity.AssetBalance{}, nil
	}

	results := make([]entity.AssetBalance, 0, len(walletAddresses))
	for _, chunk := range utils.BatchStrings(walletAddresses, c.maxWalletsPerCall) {
		chunkResults, err := c.assetBalancesChunk(ctx, asset, chunk)
		if err != nil {
			return results, err
		}
		results = append(results, chunkResults...)
	}
	return results, nil
}

func (c *EVMClient) assetBalancesChunk(ctx context.Context, asset entity.AssetInfo, walletAddresses []string) ([]entity.AssetBalance, error) {
	batchElems := make([]rpc.BatchElem, len(walletAddresses))
	results := make([]entity.AssetBalance, len(walletAddresses))

	for i, walletAddress := range walletAddresses {
		results[i] = entity.AssetBalance{
			WalletAddress: walletAddress,
			Network:       string(c.netDef.Network),
			AssetSymbol:   asset.Symbol,
			Decimals:      asset.Decimals,
		}

		paddedWalletAddress := common.LeftPadBytes(common.HexToAddress(walletAddress).Bytes(), 32)
		callData := append(append([]byte(nil), balanceOfID...), paddedWalletAddress...)

		callArgs := map[string]interface{}{
			"to":   common.HexToAddress(asset.Address),
			"data": hexutil.Bytes(callData),
		}
		batchElems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArgs, "latest"},
			Result: new(hexutil.Bytes),
		}
	}

	rawRPCClient := c.ethClient.Client()

	rpcCallCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	if err := rawRPCClient.BatchCallContext(rpcCallCtx, batchElems); err != nil {
		return results, fmt.Errorf("RPC batch call failed: %w", err)
	}

	for i, elem := range batchElems {
		if elem.Error != nil {
			results[i].Error = fmt.Errorf("failed to fetch %s balance of %s: %w",
				asset.Symbol, walletAddresses[i], elem.Error)
			continue
		}

		raw, ok := elem.Result.(*hexutil.Bytes)
		if !ok || raw == nil {
			results[i].Error = fmt.Errorf("failed to decode %s balance of %s: unexpected type or nil result", asset.Symbol, walletAddresses[i])
			continue
		}
		if len(*raw) == 0 {
			results[i].Amount = big.NewInt(0)
		} else {
			unpacked, err := parsedERC20ABI.Unpack("balanceOf", *raw)
			if err != nil {
				results[i].Error = fmt.Errorf("failed to unpack balanceOf result for %s: %w. Raw: %s", walletAddresses[i], err, hexutil.Encode(*raw))
				continue
			}
			if len(unpacked) == 0 {
				results[i].Error = fmt.Errorf("balanceOf unpack returned no data for %s", walletAddresses[i])
				continue
			}
			amount, ok := unpacked[0].(*big.Int)
			if !ok {
				results[i].Error = fmt.Errorf("failed to assert unpacked balanceOf result to *big.Int for %s. Got: %T", walletAddresses[i], unpacked[0])
				continue
			}
			results[i].Amount = amount
		}

		formatted, err := utils.FormatBigInt(results[i].Amount, results[i].Decimals)
		if err != nil {
			results[i].Error = fmt.Errorf("failed to format balance of %s: %w", walletAddresses[i], err)
		} else {
			results[i].FormattedBalance = formatted
		}
	}
	return results, nil
}

// AssetMeta fetches the on-chain metadata of a token in one batch call. A
// missing version() view is tolerated: plain ERC20s predate it, so Version
// is left empty for them.
func (c *EVMClient) AssetMeta(ctx context.Context, assetAddress string) (*entity.AssetInfo, error) {
	token := common.HexToAddress(assetAddress)
	methods := []string{"name", "symbol", "decimals", "version"}

	batchElems := make([]rpc.BatchElem, len(methods))
	for i, method := range methods {
		batchElems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{map[string]interface{}{
				"to":   token,
				"data": hexutil.Bytes(parsedERC20ABI.Methods[method].ID),
			}, "latest"},
			Result: new(hexutil.Bytes),
		}
	}

	rawRPCClient := c.ethClient.Client()

	rpcCallCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	if err := rawRPCClient.BatchCallContext(rpcCallCtx, batchElems); err != nil {
		return nil, fmt.Errorf("RPC batch call failed: %w", err)
	}

	meta := &entity.AssetInfo{
		ChainID: c.netDef.ChainID,
		Address: assetAddress,
	}

	name, err := unpackStringResult("name", batchElems[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read name of %s: %w", assetAddress, err)
	}
	meta.Name = name

	symbol, err := unpackStringResult("symbol", batchElems[1])
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol of %s: %w", assetAddress, err)
	}
	meta.Symbol = symbol

	decimals, err := unpackDecimalsResult(batchElems[2])
	if err != nil {
		return nil, fmt.Errorf("failed to read decimals of %s: %w", assetAddress, err)
	}
	meta.Decimals = decimals

	if version, err := unpackStringResult("version", batchElems[3]); err == nil {
		meta.Version = version
	}

	return meta, nil
}

// Definition returns the network definition for this client.
func (c *EVMClient) Definition() entity.NetworkDefinition {
	return c.netDef
}

func unpackStringResult(method string, elem rpc.BatchElem) (string, error) {
	raw, err := rawCallResult(elem)
	if err != nil {
		return "", err
	}
	unpacked, err := parsedERC20ABI.Unpack(method, raw)
	if err != nil {
		return "", fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(unpacked) == 0 {
		return "", fmt.Errorf("%s unpack returned no data", method)
	}
	value, ok := unpacked[0].(string)
	if !ok {
		return "", fmt.Errorf("failed to assert unpacked %s result to string. Got: %T", method, unpacked[0])
	}
	return value, nil
}

func unpackDecimalsResult(elem rpc.BatchElem) (uint8, error) {
	raw, err := rawCallResult(elem)
	if err != nil {
		return 0, err
	}
	unpacked, err := parsedERC20ABI.Unpack("decimals", raw)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack decimals result: %w", err)
	}
	if len(unpacked) == 0 {
		return 0, fmt.Errorf("decimals unpack returned no data")
	}
	value, ok := unpacked[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("failed to assert unpacked decimals result to uint8. Got: %T", unpacked[0])
	}
	return value, nil
}

func rawCallResult(elem rpc.BatchElem) ([]byte, error) {
	if elem.Error != nil {
		return nil, elem.Error
	}
	raw, ok := elem.Result.(*hexutil.Bytes)
	if !ok || raw == nil || len(*raw) == 0 {
		return nil, fmt.Errorf("empty call result")
	}
	return *raw, nil
}
