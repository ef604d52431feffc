package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "x402_gateway/internal/domain/entity"
	"x402_gateway/internal/entity"
	"x402_gateway/internal/pkg/utils"
	"x402_gateway/pkg/metrics"

	"github.com/avast/retry-go/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AuthProvider issues the extra request headers a facilitator requires.
// Implementations are called once per request with the final method and URL.
type AuthProvider interface {
	AuthHeaders(method, requestURL string) (map[string]string, error)
}

// FacilitatorClient defines the interface for talking to an x402 facilitator.
type FacilitatorClient interface {
	Verify(ctx context.Context, payload *domain.PaymentPayload, requirements domain.PaymentRequirements) (*domain.VerifyResponse, error)
	Settle(ctx context.Context, payload *domain.PaymentPayload, requirements domain.PaymentRequirements) (*domain.SettleResponse, error)
	Supported(ctx context.Context) (*entity.SupportedKindsResponse, error)
}

// facilitatorClientImpl is the implementation of FacilitatorClient.
type facilitatorClientImpl struct {
	client     *fasthttp.Client
	baseURL    string
	timeout    time.Duration
	logger     *zap.Logger
	auth       AuthProvider
	maxRetries int
	retryDelay time.Duration
}

// NewFacilitatorClient creates a new instance of facilitatorClientImpl. The
// auth provider may be nil for facilitators without authentication.
func NewFacilitatorClient(baseURL string, timeout time.Duration, logger *zap.Logger, auth AuthProvider, maxRetries int, retryDelay time.Duration) FacilitatorClient {
	return &facilitatorClientImpl{
		client:     &fasthttp.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		logger:     logger.Named("FacilitatorClient"),
		auth:       auth,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Verify implements the FacilitatorClient interface. Transport errors and
// 5xx replies are retried; a 200 with isValid=false is returned as-is for
// the caller to act on.
func (c *facilitatorClientImpl) Verify(ctx context.Context, payload *domain.PaymentPayload, requirements domain.PaymentRequirements) (*domain.VerifyResponse, error) {
	requestURL := c.baseURL + "/verify"
	body := entity.VerifyRequest{
		X402Version:         domain.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}

	var verifyResp domain.VerifyResponse
	start := time.Now()
	err := retry.Do(
		func() error {
			return c.doJSON(ctx, fasthttp.MethodPost, requestURL, body, &verifyResp)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	c.observe("verify", start, err)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Facilitator verification finished",
		zap.Bool("isValid", verifyResp.IsValid),
		zap.String("invalidReason", verifyResp.InvalidReason),
		zap.String("payer", verifyResp.Payer))
	return &verifyResp, nil
}

// Settle implements the FacilitatorClient interface. Settlement is sent
// exactly once: after a transport error there is no way to know whether the
// facilitator already broadcast the transaction, so the decision to retry
// belongs to the caller, which can re-verify first.
func (c *facilitatorClientImpl) Settle(ctx context.Context, payload *domain.PaymentPayload, requirements domain.PaymentRequirements) (*domain.SettleResponse, error) {
	requestURL := c.baseURL + "/settle"
	body := entity.SettleRequest{
		X402Version:         domain.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}

	var settleResp domain.SettleResponse
	start := time.Now()
	err := c.doJSON(ctx, fasthttp.MethodPost, requestURL, body, &settleResp)
	c.observe("settle", start, err)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Facilitator settlement finished",
		zap.Bool("success", settleResp.Success),
		zap.String("transaction", settleResp.Transaction),
		zap.String("network", settleResp.Network),
		zap.String("errorReason", settleResp.ErrorReason))
	return &settleResp, nil
}

// Supported implements the FacilitatorClient interface.
func (c *facilitatorClientImpl) Supported(ctx context.Context) (*entity.SupportedKindsResponse, error) {
	requestURL := c.baseURL + "/supported"

	var kindsResp entity.SupportedKindsResponse
	start := time.Now()
	err := retry.Do(
		func() error {
			return c.doJSON(ctx, fasthttp.MethodGet, requestURL, nil, &kindsResp)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	c.observe("supported", start, err)
	if err != nil {
		return nil, err
	}

	if len(kindsResp.Kinds) == 0 {
		c.logger.Warn("Facilitator returned 200 OK with no supported kinds. Check facilitator configuration.",
			zap.String("url", requestURL))
	}
	return &kindsResp, nil
}

func (c *facilitatorClientImpl) observe(endpoint string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.FacilitatorRequestDuration.WithLabelValues(endpoint, result).Observe(time.Since(start).Seconds())
}

// doJSON executes a single JSON request against the facilitator and decodes
// a 200 reply into out. Non-2xx replies become errors; 4xx ones are marked
// unrecoverable so retry wrappers stop immediately.
func (c *facilitatorClientImpl) doJSON(ctx context.Context, method, requestURL string, body any, out any) error {
	c.logger.Debug("Requesting facilitator", zap.String("method", method), zap.String("url", requestURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(method)
	req.Header.SetContentTypeBytes([]byte("application/json"))

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("failed to marshal request body for %s: %w", requestURL, err))
		}
		req.SetBody(raw)
	}

	if c.auth != nil {
		headers, err := c.auth.AuthHeaders(method, requestURL)
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("failed to build auth headers for %s: %w", requestURL, err))
		}
		for name, value := range headers {
			req.Header.Set(name, value)
		}
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			c.logger.Error("Failed to execute request to facilitator", zap.String("url", requestURL), zap.Error(err))
			return fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
		}
	} else {
		if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
			c.logger.Error("Failed to execute request to facilitator (with default timeout)", zap.String("url", requestURL), zap.Error(err))
			return fmt.Errorf("failed to execute request to %s with default timeout: %w", requestURL, err)
		}
	}

	rawBody := resp.Body()
	statusCode := resp.StatusCode()

	if statusCode != fasthttp.StatusOK {
		c.logger.Error("Facilitator request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", statusCode),
			zap.ByteString("responseBody", rawBody),
		)

		// Some facilitators wrap the reason in a JSON envelope; fall back to
		// the raw body when they do not.
		reason := string(rawBody)
		var envelope entity.FacilitatorErrorResponse
		if err := json.Unmarshal(rawBody, &envelope); err == nil {
			if msg := utils.FirstNonEmpty(envelope.Error, envelope.Message, envelope.InvalidReason); msg != "" {
				reason = msg
			}
		}

		err := fmt.Errorf("facilitator request to %s failed with status %d: %s", requestURL, statusCode, reason)
		if statusCode >= 400 && statusCode < 500 {
			return retry.Unrecoverable(err)
		}
		return err
	}

	if err := json.Unmarshal(rawBody, out); err != nil {
		c.logger.Error("Failed to unmarshal facilitator response",
			zap.String("url", requestURL),
			zap.ByteString("responseBody", rawBody),
			zap.Error(err),
		)
		return retry.Unrecoverable(fmt.Errorf("failed to unmarshal facilitator response from %s: %w. Body: %s", requestURL, err, string(rawBody)))
	}
	return nil
}
