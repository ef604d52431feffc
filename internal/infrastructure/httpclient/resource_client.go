package httpclient

import (
	"context"
	"fmt"
	"time"

	domain "x402_gateway/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ResourceResponse is one reply from an x402-protected resource server.
type ResourceResponse struct {
	StatusCode      int
	Body            []byte
	PaymentRequired *domain.PaymentRequiredResponse // decoded 402 body, set when StatusCode is 402
	Settlement      *domain.SettleResponse          // decoded X-PAYMENT-RESPONSE header, when present
}

// ResourceClient defines the interface for calling paid resources.
type ResourceClient interface {
	Request(ctx context.Context, method, resourceURL string, headers map[string]string) (*ResourceResponse, error)
}

// resourceClientImpl is the implementation of ResourceClient.
type resourceClientImpl struct {
	client  *fasthttp.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewResourceClient creates a new instance of resourceClientImpl.
func NewResourceClient(timeout time.Duration, logger *zap.Logger) ResourceClient {
	return &resourceClientImpl{
		client:  &fasthttp.Client{},
		timeout: timeout,
		logger:  logger.Named("ResourceClient"),
	}
}

// Request implements the ResourceClient interface. A 402 reply is not an
// error: its body is decoded into PaymentRequired so the caller can build a
// payment and try again.
func (c *resourceClientImpl) Request(ctx context.Context, method, resourceURL string, headers map[string]string) (*ResourceResponse, error) {
	c.logger.Debug("Requesting resource", zap.String("method", method), zap.String("url", resourceURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(resourceURL)
	req.Header.SetMethod(method)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			c.logger.Error("Failed to execute request to resource server", zap.String("url", resourceURL), zap.Error(err))
			return nil, fmt.Errorf("failed to execute request to %s: %w", resourceURL, err)
		}
	} else {
		if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
			c.logger.Error("Failed to execute request to resource server (with default timeout)", zap.String("url", resourceURL), zap.Error(err))
			return nil, fmt.Errorf("failed to execute request to %s with default timeout: %w", resourceURL, err)
		}
	}

	// The response object goes back to the pool, so the body must be copied
	// before release.
	result := &ResourceResponse{
		StatusCode: resp.StatusCode(),
		Body:       append([]byte(nil), resp.Body()...),
	}

	if result.StatusCode == fasthttp.StatusPaymentRequired {
		var required domain.PaymentRequiredResponse
		if err := json.Unmarshal(result.Body, &required); err != nil {
			c.logger.Error("Failed to unmarshal 402 payment required body",
				zap.String("url", resourceURL),
				zap.ByteString("responseBody", result.Body),
				zap.Error(err),
			)
			return nil, fmt.Errorf("failed to unmarshal 402 body from %s: %w", resourceURL, err)
		}
		result.PaymentRequired = &required
		c.logger.Debug("Resource requires payment",
			zap.String("url", resourceURL),
			zap.Int("acceptsCount", len(required.Accepts)),
			zap.String("error", required.Error))
		return result, nil
	}

	if header := resp.Header.Peek(domain.PaymentResponseHeader); len(header) > 0 {
		settlement, err := domain.DecodeSettleHeader(string(header))
		if err != nil {
			c.logger.Error("Failed to decode settlement header",
				zap.String("url", resourceURL),
				zap.Error(err),
			)
			return nil, fmt.Errorf("failed to decode %s header from %s: %w", domain.PaymentResponseHeader, resourceURL, err)
		}
		result.Settlement = settlement
	}

	return result, nil
}
