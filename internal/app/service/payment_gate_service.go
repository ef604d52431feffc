package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/client"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/pkg/utils"
	"x402_gateway/pkg/metrics"
)

const (
	defaultReplayCleanupMinutes = 10
	defaultNonceTTLSeconds      = 60
	// nonceTTLSlack keeps a nonce in the replay cache a bit longer than the
	// authorization validity window it guards.
	nonceTTLSlack = time.Minute
)

// paymentGateServiceImpl implements port.PaymentGateService.
type paymentGateServiceImpl struct {
	facilitator     client.FacilitatorClient
	logger          port.Logger
	seenNonces      *cache.Cache
	failedResources map[string]bool
	mu              sync.Mutex
}

// NewPaymentGateService creates a new instance of paymentGateServiceImpl.
func NewPaymentGateService(fc client.FacilitatorClient, l port.Logger, replayCleanupMinutes int) port.PaymentGateService {
	if replayCleanupMinutes <= 0 {
		replayCleanupMinutes = defaultReplayCleanupMinutes
	}
	cleanupInterval := time.Duration(replayCleanupMinutes) * time.Minute

	return &paymentGateServiceImpl{
		facilitator:     fc,
		logger:          l,
		seenNonces:      cache.New(defaultNonceTTLSeconds*time.Second+nonceTTLSlack, cleanupInterval),
		failedResources: make(map[string]bool),
	}
}

// VerifyPayment checks a decoded payment against the route requirements. Local
// checks (scheme, network, replay) run first so obviously bad payments never
// reach the facilitator.
func (s *paymentGateServiceImpl) VerifyPayment(ctx context.Context, payload *entity.PaymentPayload, requirements entity.PaymentRequirements) (*entity.VerifyResponse, error) {
	if payload == nil || payload.Payload == nil || payload.Payload.Authorization == nil {
		return &entity.VerifyResponse{IsValid: false, InvalidReason: "malformed payment payload"}, nil
	}
	authorization := payload.Payload.Authorization

	if payload.Scheme != requirements.Scheme {
		s.logger.Warn("Payment scheme does not match route requirements",
			"payload_scheme", payload.Scheme, "required_scheme", requirements.Scheme, "payer", authorization.From)
		return &entity.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("unsupported scheme: %s", payload.Scheme),
			Payer:         authorization.From,
		}, nil
	}

	payloadNetwork, err := entity.NormalizeNetwork(payload.Network)
	if err != nil {
		return &entity.VerifyResponse{IsValid: false, InvalidReason: err.Error(), Payer: authorization.From}, nil
	}
	requiredNetwork, err := entity.NormalizeNetwork(requirements.Network)
	if err != nil {
		return nil, fmt.Errorf("invalid network in payment requirements: %w", err)
	}
	if payloadNetwork != requiredNetwork {
		return &entity.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("payment network %s does not match required network %s", payloadNetwork, requiredNetwork),
			Payer:         authorization.From,
		}, nil
	}

	nonceKey := replayKey(authorization)
	if _, seen := s.seenNonces.Get(nonceKey); seen {
		metrics.ReplayRejectionsTotal.Inc()
		s.logger.Warn("Rejected replayed payment authorization", "payer", authorization.From, "nonce", authorization.Nonce)
		return &entity.VerifyResponse{
			IsValid:       false,
			InvalidReason: "authorization nonce already used",
			Payer:         authorization.From,
		}, nil
	}

	response, err := s.facilitator.Verify(ctx, payload, requirements)
	if err != nil {
		s.logger.Error("Facilitator verification failed", "resource", requirements.Resource, "error", err)
		return nil, err
	}

	if response.IsValid {
		// Нонс помечается использованным уже на verify, чтобы один и тот же
		// X-PAYMENT нельзя было предъявить дважды.
		s.seenNonces.Set(nonceKey, struct{}{}, nonceTTL(requirements))
	}
	return response, nil
}

// SettlePayment submits a verified payment for settlement. Settlement is never
// retried here: a transport failure leaves the transaction state unknown.
func (s *paymentGateServiceImpl) SettlePayment(ctx context.Context, payload *entity.PaymentPayload, requirements entity.PaymentRequirements) (*entity.SettleResponse, error) {
	response, err := s.facilitator.Settle(ctx, payload, requirements)
	if err != nil {
		s.markFailed(requirements.Resource)
		s.logger.Error("Facilitator settlement failed", "resource", requirements.Resource, "error", err)
		return nil, err
	}

	if !response.Success {
		s.markFailed(requirements.Resource)
		s.logger.Warn("Settlement rejected by facilitator",
			"resource", requirements.Resource, "reason", response.ErrorReason, "payer", response.Payer)
		return response, nil
	}

	s.recordSettledAmount(requirements)
	s.logger.Info("Payment settled",
		"resource", requirements.Resource,
		"network", response.Network,
		"transaction", response.Transaction,
		"payer", response.Payer)
	return response, nil
}

// GetFailedResources returns resource URLs whose settlement failed since startup.
func (s *paymentGateServiceImpl) GetFailedResources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make([]string, 0, len(s.failedResources))
	for resource, failedStatus := range s.failedResources {
		if failedStatus {
			failed = append(failed, resource)
		}
	}
	return failed
}

func (s *paymentGateServiceImpl) markFailed(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedResources[resource] = true
}

func (s *paymentGateServiceImpl) recordSettledAmount(requirements entity.PaymentRequirements) {
	amount, err := utils.ParseAtomicAmount(requirements.MaxAmountRequired)
	if err != nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	metrics.SettledAmountTotal.WithLabelValues(requirements.Network, requirements.Asset).Add(value)
}

func replayKey(authorization *entity.ExactEvmAuthorization) string {
	return strings.ToLower(authorization.From) + ":" + strings.ToLower(authorization.Nonce)
}

func nonceTTL(requirements entity.PaymentRequirements) time.Duration {
	seconds := requirements.MaxTimeoutSeconds
	if seconds <= 0 {
		seconds = defaultNonceTTLSeconds
	}
	return time.Duration(seconds)*time.Second + nonceTTLSlack
}
