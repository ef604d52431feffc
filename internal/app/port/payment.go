package port

import (
	"context"
	"math/big"

	"x402_gateway/internal/domain/entity"
)

// PaymentGateService runs the verify/settle handshake for payments presented
// to protected routes and guards against authorization replay.
type PaymentGateService interface {
	// VerifyPayment checks a decoded payment against the requirements of the
	// route, including local replay detection.
	VerifyPayment(ctx context.Context, payload *entity.PaymentPayload, requirements entity.PaymentRequirements) (*entity.VerifyResponse, error)

	// SettlePayment submits a verified payment for on-chain settlement.
	SettlePayment(ctx context.Context, payload *entity.PaymentPayload, requirements entity.PaymentRequirements) (*entity.SettleResponse, error)

	// GetFailedResources returns resource URLs whose settlement failed since startup.
	GetFailedResources() []string
}

// PricingService converts quoted money amounts into atomic asset units.
type PricingService interface {
	AtomicAmount(money string, decimals uint8) (*big.Int, error)
}

// PaymentSigner produces signed exact-scheme payment payloads for one wallet.
type PaymentSigner interface {
	// Address returns the checksummed wallet address of the signer.
	Address() string

	// SignPayment builds and signs an authorization satisfying the given
	// requirements on the given network.
	SignPayment(requirements entity.PaymentRequirements, networkDefinition entity.NetworkDefinition) (*entity.PaymentPayload, error)
}
