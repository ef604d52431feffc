package entity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X402Version is the protocol version this implementation speaks. Payloads
// carrying any other version are rejected before further inspection.
const X402Version = 1

// Header names used by the payment protocol. BudgetHeader is an extension:
// clients quote the price they are willing to pay for dynamically priced
// resources.
const (
	PaymentHeader         = "X-PAYMENT"
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
	BudgetHeader          = "X-Budget"
)

// Scheme identifies a payment scheme within the protocol.
type Scheme string

// SchemeExact is the only scheme currently implemented: a signed EIP-3009
// transferWithAuthorization for an exact token amount.
const SchemeExact Scheme = "exact"

// PaymentRequirements describes one way a client may pay for a resource. It
// is serialized inside the 402 response body, so field names follow the wire
// format exactly.
type PaymentRequirements struct {
	Scheme            Scheme         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description"`
	MimeType          string         `json:"mimeType"`
	OutputSchema      map[string]any `json:"outputSchema,omitempty"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// ExtraString returns a string-valued field of the requirement's extra
// object, or the empty string when absent or of another type.
func (r PaymentRequirements) ExtraString(key string) string {
	if r.Extra == nil {
		return ""
	}
	value, ok := r.Extra[key].(string)
	if !ok {
		return ""
	}
	return value
}

// PaymentRequiredResponse is the JSON body of an HTTP 402 reply.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is the decoded X-PAYMENT request header. Network is kept as
// the raw wire string; resolving it against the supported set is an explicit
// step for the caller, never an implicit cast.
type PaymentPayload struct {
	X402Version int              `json:"x402Version"`
	Scheme      Scheme           `json:"scheme"`
	Network     string           `json:"network"`
	Payload     *ExactEvmPayload `json:"payload"`
}

// ExactEvmPayload carries the signed EIP-3009 authorization of the exact
// scheme.
type ExactEvmPayload struct {
	Signature     string                 `json:"signature"`
	Authorization *ExactEvmAuthorization `json:"authorization"`
}

// ExactEvmAuthorization mirrors the parameters of transferWithAuthorization.
// Numeric values travel as base-10 strings and Nonce as a 0x-prefixed
// 32-byte hex string, matching what the signature was computed over.
type ExactEvmAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// VerifyResponse is the facilitator's answer to a verification request.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's answer to a settlement request. It is
// also what the resource server hands back to the client inside the
// X-PAYMENT-RESPONSE header.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// DecodePaymentHeader parses an X-PAYMENT header value: standard base64
// wrapping a JSON PaymentPayload. The protocol version and the structural
// completeness of the exact-scheme payload are checked here; scheme and
// network acceptance are left to the caller.
func DecodePaymentHeader(header string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("payment header is not valid base64: %w", err)
	}
	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("payment header is not valid JSON: %w", err)
	}
	if payload.X402Version != X402Version {
		return nil, fmt.Errorf("unsupported x402 version: %d", payload.X402Version)
	}
	if payload.Payload == nil || payload.Payload.Authorization == nil {
		return nil, fmt.Errorf("payment payload is missing the exact EVM authorization")
	}
	return &payload, nil
}

// EncodeHeader serializes the payload into an X-PAYMENT header value.
func (p *PaymentPayload) EncodeHeader() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// EncodeHeader serializes the settle response into an X-PAYMENT-RESPONSE
// header value.
func (r *SettleResponse) EncodeHeader() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSettleHeader parses an X-PAYMENT-RESPONSE header value.
func DecodeSettleHeader(header string) (*SettleResponse, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("payment response header is not valid base64: %w", err)
	}
	var settle SettleResponse
	if err := json.Unmarshal(raw, &settle); err != nil {
		return nil, fmt.Errorf("payment response header is not valid JSON: %w", err)
	}
	return &settle, nil
}
