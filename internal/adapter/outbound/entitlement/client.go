package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/steyzi/server/internal/domain/billing"
	"github.com/steyzi/server/internal/shared/config"
	"github.com/steyzi/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// Client submits entitlement changes to the external billing provider over
// HTTP. A circuit breaker guards the endpoint so that a provider outage fails
// fast instead of stacking up blocked top-up requests.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[any]
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewClient creates an entitlement client.
func NewClient(cfg *config.EntitlementConfig, m *metrics.Metrics, logger *zap.Logger) *Client {
	settings := gobreaker.Settings{
		Name:        "entitlement",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.CircuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("entitlement circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:      20,
		IdleConnTimeout:   90 * time.Second,
		ForceAttemptHTTP2: true,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		metrics: m,
		logger:  logger,
	}
}

// IncreaseEntitlement submits an entitlement increase for a tenant.
func (c *Client) IncreaseEntitlement(ctx context.Context, tenantID uuid.UUID, inc *billing.EntitlementIncrease) error {
	path := fmt.Sprintf("/v1/tenants/%s/entitlement/increase", tenantID)
	return c.post(ctx, "increase", path, inc)
}

// SubmitCancellation reports a subscription cancellation for a tenant.
func (c *Client) SubmitCancellation(ctx context.Context, tenantID uuid.UUID, reason string) error {
	path := fmt.Sprintf("/v1/tenants/%s/cancellation", tenantID)
	return c.post(ctx, "cancel", path, map[string]string{"reason": reason})
}

func (c *Client) post(ctx context.Context, operation, path string, payload any) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.doPost(ctx, path, payload)
	})
	c.metrics.RecordEntitlementCall(operation, time.Since(start), err)
	if err != nil {
		c.logger.Error("entitlement call failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return fmt.Errorf("entitlement %s: %w", operation, err)
	}
	return nil
}

func (c *Client) doPost(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// Ensure Client implements billing.EntitlementAPI.
var _ billing.EntitlementAPI = (*Client)(nil)
