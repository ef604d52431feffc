package restapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/configloader"
)

// APINetworkResponse определяет структуру ответа для эндпоинтов сетей.
type APINetworkResponse struct {
	Network      string           `json:"network"`
	CAIP2        string           `json:"caip2"`
	ChainID      uint64           `json:"chainId"`
	Name         string           `json:"name"`
	Testnet      bool             `json:"testnet"`
	PaymentAsset entity.AssetInfo `json:"paymentAsset"`
}

// ResourceHandler обрабатывает HTTP запросы демонстрационного платного сервиса.
type ResourceHandler struct {
	networks    port.NetworkDefinitionProvider
	gate        port.PaymentGateService
	cfg         configloader.PaymentConfig
	faviconPath string
	startedAt   time.Time
}

// NewResourceHandler создает новый экземпляр ResourceHandler.
func NewResourceHandler(networks port.NetworkDefinitionProvider, gate port.PaymentGateService, cfg configloader.PaymentConfig) *ResourceHandler {
	return &ResourceHandler{
		networks:    networks,
		gate:        gate,
		cfg:         cfg,
		faviconPath: "static/favicon.ico",
		startedAt:   time.Now(),
	}
}

const indexPageTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>x402 Payment Gateway</title>
    <meta name="description" content="Pay-per-request resources over the x402 protocol">
    <link rel="icon" href="/favicon.ico">
</head>
<body>
    <h1>x402 Payment Gateway</h1>
    <p>Resources on this server charge per request via the x402 protocol.</p>
    <p>Network: <code>%s</code></p>
    <p>Pay to: <code>%s</code></p>
    <p>Status: <span style="color: green;">&#10003; Operational</span></p>
</body>
</html>
`

// Index serves an HTML landing page describing the payment service.
func (h *ResourceHandler) Index(c *gin.Context) {
	page := fmt.Sprintf(indexPageTemplate, h.cfg.Network, h.cfg.PayTo)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// Healthz reports liveness plus the resources whose settlement has failed
// since startup, so operators notice stuck payments without digging in logs.
func (h *ResourceHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"uptime":            time.Since(h.startedAt).Round(time.Second).String(),
		"failedSettlements": h.gate.GetFailedResources(),
	})
}

// Favicon serves the resource icon referenced by payment catalogs.
func (h *ResourceHandler) Favicon(c *gin.Context) {
	c.File(h.faviconPath)
}

// ACPBudget is the dynamically priced resource. The payload has no utility
// beyond acknowledging the paid budget; compression and transformation are
// disabled so intermediaries serve the body byte-exact.
func (h *ResourceHandler) ACPBudget(c *gin.Context) {
	c.Header("Content-Encoding", "identity")
	c.Header("Cache-Control", "no-transform")
	c.JSON(http.StatusOK, gin.H{
		"message":  "pay acp job budget",
		"token":    "acp job payment token",
		"protocol": "x402",
		"utility":  "none",
		"vibes":    "acp early adopter",
		"advice":   "not financial advice",
		"method":   c.Request.Method,
	})
}

// PremiumInsights is the statically priced resource.
func (h *ResourceHandler) PremiumInsights(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"insights": []gin.H{
			{"topic": "settlement latency", "value": "facilitator settles within one block on base-sepolia"},
			{"topic": "replay protection", "value": "every authorization nonce is single-use"},
		},
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListNetworks returns the catalog of networks accepted for payment.
func (h *ResourceHandler) ListNetworks(c *gin.Context) {
	definitions := h.networks.GetAllNetworkDefinitions()
	networks := make([]APINetworkResponse, 0, len(definitions))
	for _, def := range definitions {
		networks = append(networks, networkResponse(def))
	}
	c.JSON(http.StatusOK, gin.H{"networks": networks})
}

// GetNetwork resolves one network by any accepted identifier form: canonical
// name, CAIP-2 or bare chain ID. Unresolvable identifiers yield a 404 whose
// error field carries the resolver's reason.
func (h *ResourceHandler) GetNetwork(c *gin.Context) {
	identifier := c.Param("identifier")
	definition, err := h.networks.GetNetworkDefinitionByName(identifier)
	if err != nil {
		var unsupported *entity.UnsupportedNetworkError
		if errors.As(err, &unsupported) {
			c.JSON(http.StatusNotFound, gin.H{"error": unsupported.Error()})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, networkResponse(definition))
}

func networkResponse(def entity.NetworkDefinition) APINetworkResponse {
	return APINetworkResponse{
		Network:      def.Network.String(),
		CAIP2:        def.CAIP2(),
		ChainID:      def.ChainID,
		Name:         def.Name,
		Testnet:      def.Testnet,
		PaymentAsset: def.USDC,
	}
}
