package hub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"
	"github.com/Migyaba/external-settlement-service/internal/infra"

	"github.com/go-resty/resty/v2"
)

// Hub operation names, used in errors, logs and metrics
const (
	opFetchSettlement   = "fetch_settlement"
	opSetSettlement     = "set_settlement_state"
	opSetAccountState   = "set_account_state"
	correlationHeader   = "X-Correlation-ID"
	maxErrorBodyLogSize = 256
)

// Client is the settlement hub REST client (Boundary Layer)
type Client struct {
	http    *resty.Client
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewClient creates a hub client with a fixed per-call timeout.
func NewClient(cfg *infra.Config, metrics *infra.Metrics) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Hub.BaseURL, "/")).
		SetTimeout(cfg.HubTimeout()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", infra.DefaultUserAgent)

	if cfg.Hub.InsecureSkipVerify {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // lab hubs use self-signed certs
	}
	if cfg.Hub.AuthToken != "" {
		rc.SetAuthToken(cfg.Hub.AuthToken)
	}

	return &Client{
		http:    rc,
		metrics: metrics,
		logger:  slog.Default().With("module", "hub_client"),
	}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if id := domain.CorrelationID(ctx); id != "" {
		req.SetHeader(correlationHeader, id)
	}
	return req
}

// FetchSettlement reads the authoritative settlement snapshot.
func (c *Client) FetchSettlement(ctx context.Context, settlementID string) (*domain.Snapshot, error) {
	start := time.Now()
	snap, err := c.fetchSettlement(ctx, settlementID)
	c.metrics.ObserveHubCall(opFetchSettlement, err, time.Since(start))
	return snap, err
}

func (c *Client) fetchSettlement(ctx context.Context, settlementID string) (*domain.Snapshot, error) {
	resp, err := c.request(ctx).
		SetPathParam("id", settlementID).
		Get("/settlements/{id}")
	if err != nil {
		return nil, domain.WrapSettlementError(domain.KindHubUnreachable,
			domain.NewNetworkError(opFetchSettlement, err), "settlement %s", settlementID)
	}

	if !resp.IsSuccess() {
		c.logger.Warn("Hub returned non-success for settlement",
			slog.String("settlement_id", settlementID),
			slog.Int("status", resp.StatusCode()),
			slog.String("body", truncate(resp.String())),
		)
		return nil, domain.NewSettlementError(domain.KindSettlementNotFound,
			"settlement %s: hub returned %d", settlementID, resp.StatusCode())
	}

	var payload settlementPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, domain.WrapSettlementError(domain.KindHubUnreachable,
			domain.NewFatalNetworkError(opFetchSettlement, err), "settlement %s: undecodable payload", settlementID)
	}

	return payload.toSnapshot(settlementID), nil
}

// SetSettlementState asks the hub to move the settlement to state.
func (c *Client) SetSettlementState(ctx context.Context, settlementID string, state domain.SettlementState) error {
	start := time.Now()
	resp, err := c.request(ctx).
		SetPathParam("id", settlementID).
		SetBody(stateRequest{State: string(state)}).
		Put("/settlements/{id}")
	err = c.writeResult(opSetSettlement, resp, err)
	c.metrics.ObserveHubCall(opSetSettlement, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("set settlement %s to %s: %w", settlementID, state, err)
	}
	return nil
}

// SetParticipantAccountState marks one participant account with state.
func (c *Client) SetParticipantAccountState(ctx context.Context, settlementID, participantID, accountID string, state domain.SettlementState, reason string) error {
	start := time.Now()
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{
			"id":  settlementID,
			"pid": participantID,
			"aid": accountID,
		}).
		SetBody(stateRequest{State: string(state), Reason: reason}).
		Put("/settlements/{id}/participants/{pid}/accounts/{aid}")
	err = c.writeResult(opSetAccountState, resp, err)
	c.metrics.ObserveHubCall(opSetAccountState, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("set account %s/%s/%s to %s: %w", settlementID, participantID, accountID, state, err)
	}
	return nil
}

func (c *Client) writeResult(op string, resp *resty.Response, err error) error {
	if err != nil {
		return domain.NewNetworkError(op, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: status %d: %s", domain.ErrHubRejected, resp.StatusCode(), truncate(resp.String()))
	}
	return nil
}

func truncate(s string) string {
	if len(s) > maxErrorBodyLogSize {
		return s[:maxErrorBodyLogSize] + "..."
	}
	return s
}

var _ domain.SettlementHub = (*Client)(nil)
