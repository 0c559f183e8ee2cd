package entitlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/steyzi/server/internal/domain/billing"
	"github.com/steyzi/server/internal/shared/config"
	"github.com/steyzi/server/internal/shared/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testMetrics = metrics.New("entitlement_client_test")

func newTestClient(baseURL string) *Client {
	return NewClient(&config.EntitlementConfig{
		BaseURL:          baseURL,
		Timeout:          2 * time.Second,
		FailureThreshold: 3,
		CircuitTimeout:   time.Second,
	}, testMetrics, zap.NewNop())
}

func TestClient_IncreaseEntitlement(t *testing.T) {
	tenantID := uuid.New()
	var got billing.EntitlementIncrease

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/tenants/"+tenantID.String()+"/entitlement/increase", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.IncreaseEntitlement(context.Background(), tenantID, &billing.EntitlementIncrease{
		AdditionalBeds: 5,
		NewMaxBeds:     25,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.AdditionalBeds)
	assert.Equal(t, int64(25), got.NewMaxBeds)
}

func TestClient_SubmitCancellation(t *testing.T) {
	tenantID := uuid.New()
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tenants/"+tenantID.String()+"/cancellation", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	require.NoError(t, client.SubmitCancellation(context.Background(), tenantID, "closing down"))
	assert.Equal(t, "closing down", got["reason"])
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such tenant", http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.SubmitCancellation(context.Background(), uuid.New(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	tenantID := uuid.New()

	for i := 0; i < 3; i++ {
		assert.Error(t, client.SubmitCancellation(context.Background(), tenantID, "x"))
	}

	// The breaker is open now; the call fails without reaching the server.
	srv.Close()
	err := client.SubmitCancellation(context.Background(), tenantID, "x")
	assert.Error(t, err)
}
