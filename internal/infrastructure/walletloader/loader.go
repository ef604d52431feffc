package walletloader

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/pkg/utils"
)

const (
	defaultWalletFilePath = "data/wallets.txt"
	privateKeyEnvVar      = "PRIVATE_KEY"
)

// WalletFileLoader implements the port.WalletProvider interface by loading
// payer keys from the environment or from a file.
type WalletFileLoader struct {
	filePath   string
	loggerInfo func(msg string, args ...any)
	loggerWarn func(msg string, args ...any)
}

// NewWalletFileLoader creates a new WalletFileLoader.
func NewWalletFileLoader(filePath string, loggerInfo func(msg string, args ...any), loggerWarn func(msg string, args ...any)) port.WalletProvider {
	return &WalletFileLoader{
		filePath:   utils.FirstNonEmpty(filePath, defaultWalletFilePath),
		loggerInfo: loggerInfo,
		loggerWarn: loggerWarn,
	}
}

// GetWallets returns the payer wallets. The PRIVATE_KEY environment variable
// takes precedence over the wallet file.
func (l *WalletFileLoader) GetWallets() ([]entity.Wallet, error) {
	if keyHex := strings.TrimSpace(utils.GetEnv(privateKeyEnvVar, "")); keyHex != "" {
		wallet, err := walletFromPrivateKey(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid %s environment variable: %w", privateKeyEnvVar, err)
		}
		if l.loggerInfo != nil {
			l.loggerInfo("Using wallet from environment variable", "address", wallet.Address)
		}
		return []entity.Wallet{*wallet}, nil
	}

	file, err := os.Open(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet file %s: %w", l.filePath, err)
	}
	defer file.Close()

	var wallets []entity.Wallet
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		wallet, err := walletFromPrivateKey(line)
		if err != nil {
			if l.loggerWarn != nil {
				l.loggerWarn("Skipping invalid private key", "file", l.filePath, "line_number", lineNum, "error", err)
			}
			continue
		}
		wallets = append(wallets, *wallet)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning wallet file %s: %w", l.filePath, err)
	}

	if l.loggerInfo != nil {
		l.loggerInfo("Wallets loaded successfully from file", "count", len(wallets), "path", l.filePath)
	}
	return wallets, nil
}

// GetWalletByAddress searches for a wallet by its address.
func (l *WalletFileLoader) GetWalletByAddress(address string) (*entity.Wallet, error) {
	wallets, err := l.GetWallets()
	if err != nil {
		// Логгер уже используется внутри GetWallets, здесь достаточно контекста поиска.
		return nil, fmt.Errorf("failed to load wallets when searching by address '%s': %w", address, err)
	}

	for _, wallet := range wallets {
		if strings.EqualFold(wallet.Address, address) {
			return &wallet, nil
		}
	}

	return nil, fmt.Errorf("wallet with address %s not found in %s", address, l.filePath)
}

func walletFromPrivateKey(keyHex string) (*entity.Wallet, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &entity.Wallet{
		Address:       crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
		PrivateKeyHex: keyHex,
	}, nil
}
