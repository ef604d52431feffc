package entity

import domain "x402_gateway/internal/domain/entity"

// VerifyRequest is the body POSTed to the facilitator /verify endpoint.
type VerifyRequest struct {
	X402Version         int                        `json:"x402Version"`
	PaymentPayload      *domain.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements domain.PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest is the body POSTed to the facilitator /settle endpoint. It is
// structurally identical to VerifyRequest but kept separate so the two wire
// contracts can drift independently.
type SettleRequest struct {
	X402Version         int                        `json:"x402Version"`
	PaymentPayload      *domain.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements domain.PaymentRequirements `json:"paymentRequirements"`
}

// SupportedKindsResponse is the reply of the facilitator /supported endpoint.
type SupportedKindsResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// SupportedKind names one scheme/network pair the facilitator can settle.
type SupportedKind struct {
	X402Version int            `json:"x402Version,omitempty"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Extra       map[string]any `json:"extra,omitempty"` // Present on some facilitators, e.g. fee payer hints
}

// FacilitatorErrorResponse is the error envelope some facilitators return on
// non-2xx statuses. Fields are all optional; unknown envelopes degrade to the
// raw body.
type FacilitatorErrorResponse struct {
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
	InvalidReason string `json:"invalidReason,omitempty"`
}
