package walletloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	devKeyOne     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddressOne = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	devKeyTwo     = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	devAddressTwo = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func writeWalletFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wallets.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetWalletsFromFile(t *testing.T) {
	path := writeWalletFile(t, "# payer keys\n\n"+devKeyOne+"\n"+devKeyTwo+"\n")

	loader := NewWalletFileLoader(path, nil, nil)
	wallets, err := loader.GetWallets()
	require.NoError(t, err)
	require.Len(t, wallets, 2)

	assert.Equal(t, devAddressOne, wallets[0].Address)
	assert.Equal(t, devKeyOne, wallets[0].PrivateKeyHex)
	assert.Equal(t, devAddressTwo, wallets[1].Address)
	assert.Equal(t, devKeyTwo, wallets[1].PrivateKeyHex)
}

func TestGetWalletsSkipsInvalidLines(t *testing.T) {
	path := writeWalletFile(t, devKeyOne+"\nnot-a-key\n0x1234\n")

	var warned []string
	loader := NewWalletFileLoader(path, nil, func(msg string, args ...any) {
		warned = append(warned, msg)
	})

	wallets, err := loader.GetWallets()
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, devAddressOne, wallets[0].Address)
	assert.Len(t, warned, 2)
}

func TestGetWalletsPrefersEnvironmentKey(t *testing.T) {
	path := writeWalletFile(t, devKeyOne+"\n"+devKeyTwo+"\n")
	t.Setenv("PRIVATE_KEY", devKeyTwo)

	loader := NewWalletFileLoader(path, nil, nil)
	wallets, err := loader.GetWallets()
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, devAddressTwo, wallets[0].Address)
}

func TestGetWalletsRejectsInvalidEnvironmentKey(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "0xzz")

	loader := NewWalletFileLoader(writeWalletFile(t, devKeyOne), nil, nil)
	_, err := loader.GetWallets()
	require.ErrorContains(t, err, "PRIVATE_KEY")
}

func TestGetWalletsMissingFile(t *testing.T) {
	loader := NewWalletFileLoader(filepath.Join(t.TempDir(), "absent.txt"), nil, nil)
	_, err := loader.GetWallets()
	require.ErrorContains(t, err, "failed to open wallet file")
}

func TestGetWalletByAddress(t *testing.T) {
	path := writeWalletFile(t, devKeyOne+"\n"+devKeyTwo+"\n")
	loader := NewWalletFileLoader(path, nil, nil).(*WalletFileLoader)

	wallet, err := loader.GetWalletByAddress("0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266")
	require.NoError(t, err)
	assert.Equal(t, devAddressOne, wallet.Address)

	_, err = loader.GetWalletByAddress("0x0000000000000000000000000000000000000001")
	require.ErrorContains(t, err, "not found")
}
