package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"
	"github.com/Migyaba/external-settlement-service/internal/infra"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const currentPayload = `{
	"id": 42,
	"state": "PS_TRANSFERS_COMMITTED",
	"participants": [
		{"id": 1, "accounts": [{"id": 10, "state": "PS_TRANSFERS_COMMITTED",
			"netSettlementAmount": {"amount": -100, "currency": "USD"}}]},
		{"id": "2", "accounts": [{"id": "20",
			"netSettlementAmount": {"amount": "100.00", "currency": "USD"}}]}
	]
}`

const legacyPayload = `{
	"settlementId": "43",
	"state": "PS_TRANSFERS_RESERVED",
	"participantSettlements": [
		{"participantId": "7", "accounts": [{"participantAccountId": 70, "amount": 55.5, "currency": "EUR"}]}
	]
}`

type recordedRequest struct {
	Method string
	Path   string
	Body   stateRequest
	Fields map[string]any
	Corr   string
}

func newTestConfig(baseURL string) *infra.Config {
	cfg := &infra.Config{}
	cfg.Hub.BaseURL = baseURL
	cfg.Hub.TimeoutMS = 2000
	return cfg
}

func newHubServer(t *testing.T, handler http.HandlerFunc) (*Client, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Corr: r.Header.Get(correlationHeader)}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &rec.Body)
			_ = json.Unmarshal(body, &rec.Fields)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(newTestConfig(srv.URL), infra.NewMetrics()), &reqs
}

func TestFetchSettlement_CurrentShape(t *testing.T) {
	client, reqs := newHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, currentPayload)
	})

	ctx := domain.WithCorrelationID(context.Background(), "corr-1")
	snap, err := client.FetchSettlement(ctx, "42")
	require.NoError(t, err)

	assert.Equal(t, "42", snap.ID)
	assert.Equal(t, domain.StateCommitted, snap.State)
	require.Len(t, snap.Participants, 2)
	assert.Equal(t, "1", snap.Participants[0].ParticipantID)
	assert.Equal(t, "10", snap.Participants[0].Accounts[0].AccountID)
	assert.Equal(t, "USD", snap.Participants[0].Accounts[0].Currency)
	assert.True(t, decimal.NewFromInt(-100).Equal(snap.Participants[0].Accounts[0].NetAmount))
	assert.True(t, decimal.RequireFromString("100.00").Equal(snap.Participants[1].Accounts[0].NetAmount))

	require.Len(t, *reqs, 1)
	assert.Equal(t, "/settlements/42", (*reqs)[0].Path)
	assert.Equal(t, "corr-1", (*reqs)[0].Corr)
}

func TestFetchSettlement_LegacyShape(t *testing.T) {
	client, _ := newHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, legacyPayload) // no content type on purpose
	})

	snap, err := client.FetchSettlement(context.Background(), "43")
	require.NoError(t, err)

	assert.Equal(t, "43", snap.ID)
	assert.Equal(t, domain.StateReserved, snap.State)
	require.Len(t, snap.Participants, 1)
	p := snap.Participants[0]
	assert.Equal(t, "7", p.ParticipantID)
	require.Len(t, p.Accounts, 1)
	assert.Equal(t, "70", p.Accounts[0].AccountID)
	assert.Equal(t, "EUR", p.Accounts[0].Currency)
	assert.True(t, decimal.RequireFromString("55.5").Equal(p.Accounts[0].NetAmount))
}

func TestFetchSettlement_EmptyParticipantsFallsBackToLegacy(t *testing.T) {
	client, _ := newHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"id": 44,
			"state": "PS_TRANSFERS_COMMITTED",
			"participants": [],
			"participantSettlements": [
				{"id": "1", "accounts": [{"id": 10, "amount": 100, "currency": "USD"}]},
				{"id": "2", "accounts": [{"id": 20, "amount": -100, "currency": "USD"}]}
			]
		}`)
	})

	snap, err := client.FetchSettlement(context.Background(), "44")
	require.NoError(t, err)

	require.Len(t, snap.Participants, 2)
	assert.Equal(t, "1", snap.Participants[0].ParticipantID)
	assert.Equal(t, "20", snap.Participants[1].Accounts[0].AccountID)
}

func TestFetchSettlement_NotFound(t *testing.T) {
	client, _ := newHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorInformation":{"errorCode":"3100"}}`, http.StatusNotFound)
	})

	_, err := client.FetchSettlement(context.Background(), "404")
	assert.ErrorIs(t, err, domain.ErrSettlementNotFound)
}

func TestFetchSettlement_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(newTestConfig(url), nil)
	_, err := client.FetchSettlement(context.Background(), "42")

	assert.ErrorIs(t, err, domain.ErrHubUnreachable)
	var netErr *domain.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, opFetchSettlement, netErr.Op)
}

func TestFetchSettlement_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := newTestConfig(srv.URL)
	cfg.Hub.TimeoutMS = 50
	client := NewClient(cfg, nil)

	start := time.Now()
	_, err := client.FetchSettlement(context.Background(), "42")
	assert.ErrorIs(t, err, domain.ErrHubUnreachable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchSettlement_Undecodable(t *testing.T) {
	client, _ := newHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>gateway</html>")
	})

	_, err := client.FetchSettlement(context.Background(), "42")
	assert.ErrorIs(t, err, domain.ErrHubUnreachable)
}

func TestSetSettlementState(t *testing.T) {
	client, reqs := newHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	err := client.SetSettlementState(context.Background(), "42", domain.StateSettled)
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/settlements/42", got.Path)
	assert.Equal(t, "SETTLED", got.Body.State)
	assert.Equal(t, map[string]any{"state": "SETTLED"}, got.Fields)
}

func TestSetSettlementState_Rejected(t *testing.T) {
	client, _ := newHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid transition", http.StatusBadRequest)
	})

	err := client.SetSettlementState(context.Background(), "42", domain.StateSettled)
	assert.ErrorIs(t, err, domain.ErrHubRejected)
}

func TestSetParticipantAccountState(t *testing.T) {
	client, reqs := newHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	err := client.SetParticipantAccountState(context.Background(), "42", "1", "10", domain.StateSettled, "WIRE-1")
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	assert.Equal(t, "/settlements/42/participants/1/accounts/10", (*reqs)[0].Path)
	assert.Equal(t, "SETTLED", (*reqs)[0].Body.State)
	assert.Equal(t, "WIRE-1", (*reqs)[0].Body.Reason)
}
