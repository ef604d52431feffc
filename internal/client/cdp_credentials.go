package client

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cdpJWTIssuer   = "cdp"
	cdpJWTLifetime = 2 * time.Minute
)

// CDPCredentials signs short-lived bearer tokens for the Coinbase Developer
// Platform facilitator. Each request gets its own JWT bound to the exact
// method, host and path being called, plus a fresh nonce.
type CDPCredentials struct {
	keyID string
	ecKey *ecdsa.PrivateKey
	edKey ed25519.PrivateKey
}

// NewCDPCredentials parses a CDP API key secret. EC keys arrive PEM-encoded
// (ES256), Ed25519 keys as base64 of the raw 64-byte private key (EdDSA).
func NewCDPCredentials(keyID, keySecret string) (*CDPCredentials, error) {
	if keyID == "" {
		return nil, fmt.Errorf("CDP key ID is empty")
	}
	if keySecret == "" {
		return nil, fmt.Errorf("CDP key secret is empty")
	}

	creds := &CDPCredentials{keyID: keyID}

	if strings.Contains(keySecret, "BEGIN") {
		block, _ := pem.Decode([]byte(keySecret))
		if block == nil {
			return nil, fmt.Errorf("CDP key secret is not valid PEM")
		}
		if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
			creds.ecKey = key
			return creds, nil
		}
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse CDP EC private key: %w", err)
		}
		key, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("CDP PEM key is %T, expected an EC private key", parsed)
		}
		creds.ecKey = key
		return creds, nil
	}

	raw, err := base64.StdEncoding.DecodeString(keySecret)
	if err != nil {
		return nil, fmt.Errorf("CDP key secret is neither PEM nor base64: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		creds.edKey = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		creds.edKey = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("CDP Ed25519 key has unexpected length %d", len(raw))
	}
	return creds, nil
}

// AuthHeaders implements AuthProvider. The uris claim pins the token to one
// endpoint, so tokens cannot be replayed against other CDP APIs.
func (c *CDPCredentials) AuthHeaders(method, requestURL string) (map[string]string, error) {
	parsed, err := url.Parse(requestURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", requestURL, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("request URL %q has no host", requestURL)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  c.keyID,
		"iss":  cdpJWTIssuer,
		"nbf":  now.Unix(),
		"exp":  now.Add(cdpJWTLifetime).Unix(),
		"uris": []string{fmt.Sprintf("%s %s%s", method, parsed.Host, parsed.Path)},
	}

	var token *jwt.Token
	if c.ecKey != nil {
		token = jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	} else {
		token = jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT nonce: %w", err)
	}
	token.Header["kid"] = c.keyID
	token.Header["nonce"] = nonce

	var signed string
	if c.ecKey != nil {
		signed, err = token.SignedString(c.ecKey)
	} else {
		signed, err = token.SignedString(c.edKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign CDP JWT: %w", err)
	}

	return map[string]string{
		"Authorization":       "Bearer " + signed,
		"Correlation-Context": "sdk_language=go,source=x402_gateway",
	}, nil
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
