package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/pkg/utils"
)

const (
	// validAfterSlackSeconds backdates the authorization so small clock skew
	// between payer and settling node does not invalidate it.
	validAfterSlackSeconds = 10
	defaultValiditySeconds = 60
)

var transferWithAuthorizationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

type exactSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewExactSigner creates a payment signer from a hex-encoded private key.
func NewExactSigner(privateKeyHex string) (port.PaymentSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &exactSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

func (s *exactSigner) Address() string {
	return s.address.Hex()
}

// SignPayment builds a TransferWithAuthorization payload for the given
// requirements and signs its EIP-712 hash with the wallet key.
func (s *exactSigner) SignPayment(requirements entity.PaymentRequirements, networkDefinition entity.NetworkDefinition) (*entity.PaymentPayload, error) {
	if requirements.Scheme != entity.SchemeExact {
		return nil, fmt.Errorf("unsupported payment scheme: %s", requirements.Scheme)
	}
	if !common.IsHexAddress(requirements.PayTo) {
		return nil, fmt.Errorf("invalid payTo address: %s", requirements.PayTo)
	}
	if !common.IsHexAddress(requirements.Asset) {
		return nil, fmt.Errorf("invalid asset address: %s", requirements.Asset)
	}

	value, err := utils.ParseAtomicAmount(requirements.MaxAmountRequired)
	if err != nil {
		return nil, fmt.Errorf("invalid maxAmountRequired %q: %w", requirements.MaxAmountRequired, err)
	}

	domainName, domainVersion, err := resolveDomain(requirements, networkDefinition)
	if err != nil {
		return nil, err
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	validitySeconds := int64(requirements.MaxTimeoutSeconds)
	if validitySeconds <= 0 {
		validitySeconds = defaultValiditySeconds
	}
	now := time.Now().Unix()

	authorization := &entity.ExactEvmAuthorization{
		From:        s.address.Hex(),
		To:          common.HexToAddress(requirements.PayTo).Hex(),
		Value:       value.String(),
		ValidAfter:  strconv.FormatInt(now-validAfterSlackSeconds, 10),
		ValidBefore: strconv.FormatInt(now+validitySeconds, 10),
		Nonce:       nonce,
	}

	signature, err := s.signAuthorization(authorization, requirements.Asset, domainName, domainVersion, networkDefinition.ChainID)
	if err != nil {
		return nil, err
	}

	return &entity.PaymentPayload{
		X402Version: entity.X402Version,
		Scheme:      entity.SchemeExact,
		Network:     requirements.Network,
		Payload: &entity.ExactEvmPayload{
			Signature:     signature,
			Authorization: authorization,
		},
	}, nil
}

func (s *exactSigner) signAuthorization(authorization *entity.ExactEvmAuthorization, assetAddress, domainName, domainVersion string, chainID uint64) (string, error) {
	typedData := apitypes.TypedData{
		Types:       transferWithAuthorizationTypes,
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: common.HexToAddress(assetAddress).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        authorization.From,
			"to":          authorization.To,
			"value":       authorization.Value,
			"validAfter":  authorization.ValidAfter,
			"validBefore": authorization.ValidBefore,
			"nonce":       authorization.Nonce,
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("failed to hash authorization: %w", err)
	}

	signature, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign authorization: %w", err)
	}

	// Контракты EIP-3009 ожидают v в форме 27/28.
	signature[64] += 27

	return hexutil.Encode(signature), nil
}

// resolveDomain picks the EIP-712 domain parameters for the asset: the
// requirement's extra fields win, the built-in asset registry fills the gaps.
func resolveDomain(requirements entity.PaymentRequirements, networkDefinition entity.NetworkDefinition) (string, string, error) {
	name := requirements.ExtraString("name")
	version := requirements.ExtraString("version")

	if strings.EqualFold(requirements.Asset, networkDefinition.USDC.Address) {
		name = utils.FirstNonEmpty(name, networkDefinition.USDC.Name)
		version = utils.FirstNonEmpty(version, networkDefinition.USDC.Version)
	}
	if name == "" || version == "" {
		return "", "", fmt.Errorf("missing EIP-712 domain parameters for asset %s on network %s", requirements.Asset, networkDefinition.Network)
	}

	return name, version, nil
}

func randomNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate authorization nonce: %w", err)
	}

	return hexutil.Encode(nonce[:]), nil
}
