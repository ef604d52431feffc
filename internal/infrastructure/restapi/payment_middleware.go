package restapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/configloader"
	"x402_gateway/internal/pkg/utils"
	"x402_gateway/pkg/metrics"
)

// RouteOptions configures payment collection for one protected route.
type RouteOptions struct {
	// Price is a static money amount ("$0.01"). When empty the route is
	// dynamically priced: the client quotes a budget in the X-Budget header
	// and the configured default applies when the header is absent.
	Price             string
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	// OutputSchema is published inside the payment requirements so resource
	// catalogs can describe the route's inputs.
	OutputSchema map[string]any
}

// PaymentGate builds the gin middleware protecting paid routes. One instance
// serves all routes; per-route pricing comes from RouteOptions.
type PaymentGate struct {
	gate     port.PaymentGateService
	pricing  port.PricingService
	networks port.NetworkDefinitionProvider
	cfg      configloader.PaymentConfig
	logger   port.Logger
}

// NewPaymentGate creates a new PaymentGate.
func NewPaymentGate(
	gate port.PaymentGateService,
	pricing port.PricingService,
	networks port.NetworkDefinitionProvider,
	cfg configloader.PaymentConfig,
	logger port.Logger,
) *PaymentGate {
	return &PaymentGate{
		gate:     gate,
		pricing:  pricing,
		networks: networks,
		cfg:      cfg,
		logger:   logger,
	}
}

// Gate returns the payment middleware for one route. The handler response is
// buffered until settlement succeeds, so a failed settlement still turns into
// an HTTP 402 instead of serving the resource for free.
func (g *PaymentGate) Gate(opts RouteOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()

		requirements, ok := g.buildRequirements(c, opts)
		if !ok {
			return
		}

		header := c.GetHeader(entity.PaymentHeader)
		if header == "" {
			metrics.PaymentRequestsTotal.WithLabelValues(route, metrics.OutcomePaymentRequired).Inc()
			g.write402(c, "X-PAYMENT header is required", requirements)
			return
		}

		payload, err := entity.DecodePaymentHeader(header)
		if err != nil {
			metrics.PaymentRequestsTotal.WithLabelValues(route, metrics.OutcomeInvalidPayment).Inc()
			g.logger.Warn("Rejected malformed payment header", "route", route, "error", err)
			g.write402(c, err.Error(), requirements)
			return
		}

		verification, err := g.gate.VerifyPayment(c.Request.Context(), payload, requirements)
		if err != nil {
			metrics.PaymentRequestsTotal.WithLabelValues(route, metrics.OutcomeVerifyFailed).Inc()
			g.write402(c, "payment verification is temporarily unavailable", requirements)
			return
		}
		if !verification.IsValid {
			metrics.PaymentRequestsTotal.WithLabelValues(route, metrics.OutcomeInvalidPayment).Inc()
			g.write402(c, verification.InvalidReason, requirements)
			return
		}

		// Ответ хендлера буферизуется: до успешного settle наружу не уходит
		// ни байта. Writer восстанавливается и при панике хендлера, чтобы
		// recovery-мидлварь писала в настоящий ответ.
		buffered := newBufferedWriter(c.Writer)
		c.Writer = buffered
		func() {
			defer func() { c.Writer = buffered.ResponseWriter }()
			c.Next()
		}()

		if c.IsAborted() || buffered.status >= http.StatusBadRequest {
			// The resource itself refused the request; nothing to settle.
			buffered.flush()
			return
		}

		settlement, err := g.gate.SettlePayment(c.Request.Context(), payload, requirements)
		if err != nil {
			metrics.PaymentRequestsTotal.WithLabelValues(route, metrics.OutcomeSettleFailed).Inc()
			g.write402(c, "payment settlement failed", requirements)
			return
		}
		if !settlement.Success {
			metrics.PaymentRequestsTotal.WithLabelValues(route, metrics.OutcomeSettleFailed).Inc()
			g.write402(c, fmt.Sprintf("settlement rejected: %s", settlement.ErrorReason), requirements)
			return
		}

		settleHeader, err := settlement.EncodeHeader()
		if err != nil {
			g.logger.Error("Failed to encode settlement response header", "route", route, "error", err)
		} else {
			c.Writer.Header().Set(entity.PaymentResponseHeader, settleHeader)
		}

		metrics.PaymentRequestsTotal.WithLabelValues(route, metrics.OutcomeSettled).Inc()
		buffered.flush()
	}
}

// buildRequirements assembles the payment requirements advertised for the
// current request. On failure it writes the error response itself and
// returns ok=false.
func (g *PaymentGate) buildRequirements(c *gin.Context, opts RouteOptions) (entity.PaymentRequirements, bool) {
	definition, err := g.networks.GetNetworkDefinitionByName(g.cfg.Network)
	if err != nil {
		// Сеть проверяется при старте, сюда попадаем только при ошибке конфигурации.
		g.logger.Error("Payment network is not resolvable", "network", g.cfg.Network, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "payment gate is misconfigured"})
		return entity.PaymentRequirements{}, false
	}
	asset := definition.USDC

	price := opts.Price
	description := opts.Description
	if price == "" {
		price = utils.FirstNonEmpty(c.GetHeader(entity.BudgetHeader), g.cfg.DefaultBudget)
		description = fmt.Sprintf("%s (%s)", opts.Description, price)
	}

	amount, err := g.pricing.AtomicAmount(price, asset.Decimals)
	if err != nil {
		g.logger.Warn("Rejected unparseable payment amount", "price", price, "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid payment amount %q: %v", price, err),
		})
		return entity.PaymentRequirements{}, false
	}

	maxTimeout := opts.MaxTimeoutSeconds
	if maxTimeout <= 0 {
		maxTimeout = g.cfg.MaxTimeoutSeconds
	}
	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = "application/json"
	}

	return entity.PaymentRequirements{
		Scheme:            entity.SchemeExact,
		Network:           definition.Network.String(),
		MaxAmountRequired: amount.String(),
		Resource:          resourceURL(c),
		Description:       description,
		MimeType:          mimeType,
		OutputSchema:      opts.OutputSchema,
		PayTo:             g.cfg.PayTo,
		MaxTimeoutSeconds: maxTimeout,
		Asset:             asset.Address,
		Extra: map[string]any{
			"name":    asset.Name,
			"version": asset.Version,
		},
	}, true
}

// write402 sends the payment-required response. 402 bodies are never cached:
// the accepted requirements depend on the request headers.
func (g *PaymentGate) write402(c *gin.Context, reason string, requirements entity.PaymentRequirements) {
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(http.StatusPaymentRequired, entity.PaymentRequiredResponse{
		X402Version: entity.X402Version,
		Error:       reason,
		Accepts:     []entity.PaymentRequirements{requirements},
	})
}

// resourceURL reconstructs the absolute URL of the requested resource.
func resourceURL(c *gin.Context) string {
	scheme := c.GetHeader("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, c.Request.URL.Path)
}

// bufferedWriter holds back the handler's status and body so the middleware
// can still replace the response after the handler has run. Headers pass
// through to the underlying writer and are flushed with the buffered status.
type bufferedWriter struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
	wrote  bool
}

func newBufferedWriter(w gin.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *bufferedWriter) WriteHeader(code int) {
	w.status = code
	w.wrote = true
}

// WriteHeaderNow is a no-op: nothing reaches the wire until flush.
func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	w.wrote = true
	return w.body.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.wrote = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int { return w.status }

func (w *bufferedWriter) Size() int { return w.body.Len() }

func (w *bufferedWriter) Written() bool { return w.wrote }

// flush releases the buffered response to the client.
func (w *bufferedWriter) flush() {
	w.ResponseWriter.WriteHeader(w.status)
	if w.body.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.body.Bytes())
	}
}
