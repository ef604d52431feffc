package client

import (
	"context"
	stdjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "x402_gateway/internal/domain/entity"
	"x402_gateway/internal/entity"
)

type staticAuth struct {
	headers map[string]string
}

func (a *staticAuth) AuthHeaders(method, requestURL string) (map[string]string, error) {
	return a.headers, nil
}

func testPayload() *domain.PaymentPayload {
	return &domain.PaymentPayload{
		X402Version: domain.X402Version,
		Scheme:      domain.SchemeExact,
		Network:     "base-sepolia",
		Payload: &domain.ExactEvmPayload{
			Signature: "0xsig",
			Authorization: &domain.ExactEvmAuthorization{
				From:        "0x857b06519E91e3A54538791bDbb0E22373e36b66",
				To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
				Value:       "1000",
				ValidAfter:  "1740672089",
				ValidBefore: "1740672154",
				Nonce:       "0x0000000000000000000000000000000000000000000000000000000000000001",
			},
		},
	}
}

func testRequirements() domain.PaymentRequirements {
	return domain.PaymentRequirements{
		Scheme:            domain.SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: "1000",
		Resource:          "http://localhost:8080/premium/insights",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 60,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	}
}

func TestFacilitatorVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/verify", r.URL.Path)
		assert.Equal(t, "token-from-auth", r.Header.Get("Authorization"))

		var body entity.VerifyRequest
		require.NoError(t, stdjson.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, domain.X402Version, body.X402Version)
		require.NotNil(t, body.PaymentPayload)
		assert.Equal(t, "base-sepolia", body.PaymentPayload.Network)
		assert.Equal(t, "1000", body.PaymentRequirements.MaxAmountRequired)

		stdjson.NewEncoder(w).Encode(domain.VerifyResponse{
			IsValid: true,
			Payer:   body.PaymentPayload.Payload.Authorization.From,
		})
	}))
	defer server.Close()

	auth := &staticAuth{headers: map[string]string{"Authorization": "token-from-auth"}}
	c := NewFacilitatorClient(server.URL, time.Second, zap.NewNop(), auth, 3, time.Millisecond)

	resp, err := c.Verify(context.Background(), testPayload(), testRequirements())
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Equal(t, "0x857b06519E91e3A54538791bDbb0E22373e36b66", resp.Payer)
}

func TestFacilitatorVerifyRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "temporarily down", http.StatusInternalServerError)
			return
		}
		stdjson.NewEncoder(w).Encode(domain.VerifyResponse{IsValid: true})
	}))
	defer server.Close()

	c := NewFacilitatorClient(server.URL, time.Second, zap.NewNop(), nil, 3, time.Millisecond)

	resp, err := c.Verify(context.Background(), testPayload(), testRequirements())
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFacilitatorVerifyStopsOnClientError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		stdjson.NewEncoder(w).Encode(entity.FacilitatorErrorResponse{Error: "unsupported scheme"})
	}))
	defer server.Close()

	c := NewFacilitatorClient(server.URL, time.Second, zap.NewNop(), nil, 3, time.Millisecond)

	_, err := c.Verify(context.Background(), testPayload(), testRequirements())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
	assert.Equal(t, int32(1), hits.Load(), "4xx must not be retried")
}

func TestFacilitatorSettle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/settle", r.URL.Path)
		stdjson.NewEncoder(w).Encode(domain.SettleResponse{
			Success:     true,
			Transaction: "0xabc123",
			Network:     "base-sepolia",
			Payer:       "0x857b06519E91e3A54538791bDbb0E22373e36b66",
		})
	}))
	defer server.Close()

	c := NewFacilitatorClient(server.URL, time.Second, zap.NewNop(), nil, 3, time.Millisecond)

	resp, err := c.Settle(context.Background(), testPayload(), testRequirements())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "0xabc123", resp.Transaction)
}

func TestFacilitatorSettleDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "broadcast failed", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewFacilitatorClient(server.URL, time.Second, zap.NewNop(), nil, 3, time.Millisecond)

	_, err := c.Settle(context.Background(), testPayload(), testRequirements())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load(), "settlement is sent exactly once")
}

func TestFacilitatorSettleReportsFailureBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stdjson.NewEncoder(w).Encode(domain.SettleResponse{
			Success:     false,
			ErrorReason: "insufficient_funds",
			Network:     "base-sepolia",
		})
	}))
	defer server.Close()

	c := NewFacilitatorClient(server.URL, time.Second, zap.NewNop(), nil, 3, time.Millisecond)

	resp, err := c.Settle(context.Background(), testPayload(), testRequirements())
	require.NoError(t, err, "a 200 with success=false is a result, not a transport error")
	assert.False(t, resp.Success)
	assert.Equal(t, "insufficient_funds", resp.ErrorReason)
}

func TestFacilitatorSupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/supported", r.URL.Path)
		stdjson.NewEncoder(w).Encode(entity.SupportedKindsResponse{
			Kinds: []entity.SupportedKind{
				{Scheme: "exact", Network: "base"},
				{Scheme: "exact", Network: "base-sepolia"},
			},
		})
	}))
	defer server.Close()

	c := NewFacilitatorClient(server.URL, time.Second, zap.NewNop(), nil, 3, time.Millisecond)

	resp, err := c.Supported(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Kinds, 2)
	assert.Equal(t, "base", resp.Kinds[0].Network)
}

func TestFacilitatorRespectsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := NewFacilitatorClient(server.URL, time.Minute, zap.NewNop(), nil, 1, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Supported(ctx)
	require.Error(t, err)
}
