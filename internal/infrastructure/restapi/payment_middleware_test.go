package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402_gateway/internal/app/service"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/configloader"
	networkdefinition "x402_gateway/internal/infrastructure/network/definition"
)

const gatePayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Debug(msg string, args ...any) {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}

// stubGateService scripts the verify/settle answers of the payment gate.
type stubGateService struct {
	verifyResponse *entity.VerifyResponse
	verifyErr      error
	settleResponse *entity.SettleResponse
	settleErr      error
	verifyCalls    int
	settleCalls    int
	failed         []string
}

func (s *stubGateService) VerifyPayment(ctx context.Context, payload *entity.PaymentPayload, requirements entity.PaymentRequirements) (*entity.VerifyResponse, error) {
	s.verifyCalls++
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.verifyResponse, nil
}

func (s *stubGateService) SettlePayment(ctx context.Context, payload *entity.PaymentPayload, requirements entity.PaymentRequirements) (*entity.SettleResponse, error) {
	s.settleCalls++
	if s.settleErr != nil {
		return nil, s.settleErr
	}
	return s.settleResponse, nil
}

func (s *stubGateService) GetFailedResources() []string { return s.failed }

func gatePaymentConfig() configloader.PaymentConfig {
	return configloader.PaymentConfig{
		Network:           "base-sepolia",
		PayTo:             gatePayTo,
		DefaultPrice:      "$0.01",
		DefaultBudget:     "$0.001",
		MaxTimeoutSeconds: 60,
	}
}

// newGateRouter wires the payment middleware in front of a trivial handler.
func newGateRouter(t *testing.T, stub *stubGateService, opts RouteOptions, handler gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gate := NewPaymentGate(
		stub,
		service.NewPricingService(testLogger{}, 5),
		networkdefinition.NewNetworkDefinitionProvider(testLogger{}, nil),
		gatePaymentConfig(),
		testLogger{},
	)
	if handler == nil {
		handler = func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"paid": true})
		}
	}

	router := gin.New()
	router.GET("/paid", gate.Gate(opts), handler)
	return router
}

func validPaymentHeader(t *testing.T) string {
	t.Helper()
	payload := &entity.PaymentPayload{
		X402Version: entity.X402Version,
		Scheme:      entity.SchemeExact,
		Network:     "base-sepolia",
		Payload: &entity.ExactEvmPayload{
			Signature: "0xsignature",
			Authorization: &entity.ExactEvmAuthorization{
				From:        "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
				To:          gatePayTo,
				Value:       "1000",
				ValidAfter:  "0",
				ValidBefore: "9999999999",
				Nonce:       fmt.Sprintf("0x%064x", 7),
			},
		},
	}
	header, err := payload.EncodeHeader()
	require.NoError(t, err)
	return header
}

func decode402(t *testing.T, recorder *httptest.ResponseRecorder) entity.PaymentRequiredResponse {
	t.Helper()
	require.Equal(t, http.StatusPaymentRequired, recorder.Code)
	var body entity.PaymentRequiredResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestGateWithoutPaymentHeader(t *testing.T) {
	stub := &stubGateService{}
	router := newGateRouter(t, stub, RouteOptions{Description: "paid resource", MaxTimeoutSeconds: 300}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	router.ServeHTTP(recorder, request)

	body := decode402(t, recorder)
	assert.Equal(t, entity.X402Version, body.X402Version)
	assert.Equal(t, "X-PAYMENT header is required", body.Error)
	assert.Equal(t, "no-store", recorder.Header().Get("Cache-Control"))

	require.Len(t, body.Accepts, 1)
	accepted := body.Accepts[0]
	assert.Equal(t, entity.SchemeExact, accepted.Scheme)
	assert.Equal(t, "base-sepolia", accepted.Network)
	assert.Equal(t, "1000", accepted.MaxAmountRequired) // $0.001 at 6 decimals
	assert.Equal(t, gatePayTo, accepted.PayTo)
	assert.Equal(t, entity.BaseSepolia.USDC.Address, accepted.Asset)
	assert.Equal(t, 300, accepted.MaxTimeoutSeconds)
	assert.Equal(t, "http://"+request.Host+"/paid", accepted.Resource)
	assert.Equal(t, "USDC", accepted.Extra["name"])
	assert.Equal(t, "2", accepted.Extra["version"])

	assert.Zero(t, stub.verifyCalls)
}

func TestGateQuotesBudgetHeader(t *testing.T) {
	stub := &stubGateService{}
	router := newGateRouter(t, stub, RouteOptions{Description: "acp job budget"}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.BudgetHeader, "$0.05")
	router.ServeHTTP(recorder, request)

	body := decode402(t, recorder)
	require.Len(t, body.Accepts, 1)
	assert.Equal(t, "50000", body.Accepts[0].MaxAmountRequired)
	assert.Equal(t, "acp job budget ($0.05)", body.Accepts[0].Description)
	// Без собственного таймаута маршрут наследует настройку сервиса.
	assert.Equal(t, 60, body.Accepts[0].MaxTimeoutSeconds)
}

func TestGateStaticPriceIgnoresBudgetHeader(t *testing.T) {
	stub := &stubGateService{}
	router := newGateRouter(t, stub, RouteOptions{Price: "$0.01", Description: "premium"}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.BudgetHeader, "$99")
	router.ServeHTTP(recorder, request)

	body := decode402(t, recorder)
	require.Len(t, body.Accepts, 1)
	assert.Equal(t, "10000", body.Accepts[0].MaxAmountRequired)
	assert.Equal(t, "premium", body.Accepts[0].Description)
}

func TestGateRejectsMalformedBudget(t *testing.T) {
	stub := &stubGateService{}
	router := newGateRouter(t, stub, RouteOptions{Description: "acp job budget"}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.BudgetHeader, "a lot")
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "invalid payment amount")
	assert.Zero(t, stub.verifyCalls)
}

func TestGateRejectsMalformedPaymentHeader(t *testing.T) {
	stub := &stubGateService{}
	router := newGateRouter(t, stub, RouteOptions{Description: "paid resource"}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.PaymentHeader, "not base64!!!")
	router.ServeHTTP(recorder, request)

	body := decode402(t, recorder)
	assert.Contains(t, body.Error, "base64")
	assert.Zero(t, stub.verifyCalls)
}

func TestGateRejectsInvalidPayment(t *testing.T) {
	stub := &stubGateService{
		verifyResponse: &entity.VerifyResponse{IsValid: false, InvalidReason: "invalid signature"},
	}
	router := newGateRouter(t, stub, RouteOptions{Description: "paid resource"}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.PaymentHeader, validPaymentHeader(t))
	router.ServeHTTP(recorder, request)

	body := decode402(t, recorder)
	assert.Equal(t, "invalid signature", body.Error)
	assert.Equal(t, 1, stub.verifyCalls)
	assert.Zero(t, stub.settleCalls)
}

func TestGateVerificationOutage(t *testing.T) {
	stub := &stubGateService{verifyErr: fmt.Errorf("facilitator unreachable")}
	router := newGateRouter(t, stub, RouteOptions{Description: "paid resource"}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.PaymentHeader, validPaymentHeader(t))
	router.ServeHTTP(recorder, request)

	body := decode402(t, recorder)
	assert.Equal(t, "payment verification is temporarily unavailable", body.Error)
}

func TestGateSettlesAndServes(t *testing.T) {
	stub := &stubGateService{
		verifyResponse: &entity.VerifyResponse{IsValid: true, Payer: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"},
		settleResponse: &entity.SettleResponse{
			Success:     true,
			Transaction: "0xabc123",
			Network:     "base-sepolia",
			Payer:       "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		},
	}
	router := newGateRouter(t, stub, RouteOptions{Description: "paid resource"}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.PaymentHeader, validPaymentHeader(t))
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"paid":true`)
	assert.Equal(t, 1, stub.verifyCalls)
	assert.Equal(t, 1, stub.settleCalls)

	settled, err := entity.DecodeSettleHeader(recorder.Header().Get(entity.PaymentResponseHeader))
	require.NoError(t, err)
	assert.True(t, settled.Success)
	assert.Equal(t, "0xabc123", settled.Transaction)
}

func TestGateSettlementRejection(t *testing.T) {
	stub := &stubGateService{
		verifyResponse: &entity.VerifyResponse{IsValid: true},
		settleResponse: &entity.SettleResponse{Success: false, ErrorReason: "insufficient_funds"},
	}
	router := newGateRouter(t, stub, RouteOptions{Description: "paid resource"}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.PaymentHeader, validPaymentHeader(t))
	router.ServeHTTP(recorder, request)

	body := decode402(t, recorder)
	assert.Equal(t, "settlement rejected: insufficient_funds", body.Error)
	// Купленный контент не должен утечь при несостоявшемся расчете.
	assert.NotContains(t, recorder.Body.String(), `"paid":true`)
	assert.Empty(t, recorder.Header().Get(entity.PaymentResponseHeader))
}

func TestGateSettlementOutage(t *testing.T) {
	stub := &stubGateService{
		verifyResponse: &entity.VerifyResponse{IsValid: true},
		settleErr:      fmt.Errorf("facilitator timeout"),
	}
	router := newGateRouter(t, stub, RouteOptions{Description: "paid resource"}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.PaymentHeader, validPaymentHeader(t))
	router.ServeHTTP(recorder, request)

	body := decode402(t, recorder)
	assert.Equal(t, "payment settlement failed", body.Error)
	assert.NotContains(t, recorder.Body.String(), `"paid":true`)
}

func TestGateSkipsSettlementWhenHandlerFails(t *testing.T) {
	stub := &stubGateService{
		verifyResponse: &entity.VerifyResponse{IsValid: true},
	}
	failing := func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend exploded"})
	}
	router := newGateRouter(t, stub, RouteOptions{Description: "paid resource"}, failing)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/paid", nil)
	request.Header.Set(entity.PaymentHeader, validPaymentHeader(t))
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "backend exploded")
	assert.Equal(t, 1, stub.verifyCalls)
	assert.Zero(t, stub.settleCalls)
	assert.Empty(t, recorder.Header().Get(entity.PaymentResponseHeader))
}
