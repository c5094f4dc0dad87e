package directory

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"
	"github.com/Migyaba/external-settlement-service/internal/infra"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

// NotificationEndpointType is the only endpoint kind used for settlement mail.
const NotificationEndpointType = "SETTLEMENT_TRANSFER_POSITION_CHANGE_EMAIL"

type participantPayload struct {
	Name     string           `json:"name"`
	Accounts []accountPayload `json:"accounts"`
}

type accountPayload struct {
	ID                domain.FlexID `json:"id"`
	Currency          string        `json:"currency"`
	LedgerAccountType string        `json:"ledgerAccountType"`
}

type endpointPayload struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Resolver looks up participants in the ledger directory. Every lookup fails soft.
type Resolver struct {
	http    *resty.Client
	cache   AccountCache
	ttl     time.Duration
	group   singleflight.Group
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewResolver creates a directory resolver backed by cache.
func NewResolver(cfg *infra.Config, cache AccountCache, metrics *infra.Metrics) *Resolver {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Directory.BaseURL, "/")).
		SetTimeout(cfg.DirectoryTimeout()).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", infra.DefaultUserAgent)
	if cfg.Directory.InsecureSkipVerify {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // lab ledgers use self-signed certs
	}
	if cache == nil {
		cache = NewMemoryCache()
	}

	return &Resolver{
		http:    rc,
		cache:   cache,
		ttl:     time.Duration(cfg.Directory.CacheTTLSec) * time.Second,
		metrics: metrics,
		logger:  slog.Default().With("module", "directory"),
	}
}

// ResolveParticipant maps a ledger account id to its participant.
func (r *Resolver) ResolveParticipant(ctx context.Context, accountID string) (*domain.ParticipantIdentity, bool) {
	accounts, err := r.accounts(ctx)
	if err != nil {
		r.metrics.RecordDirectoryLookup("participant", "error")
		r.logger.Warn("Directory unavailable, participant unresolved",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
		return nil, false
	}

	identity, ok := accounts[strings.TrimSpace(accountID)]
	if !ok {
		r.metrics.RecordDirectoryLookup("participant", "miss")
		return nil, false
	}
	r.metrics.RecordDirectoryLookup("participant", "hit")
	return &identity, true
}

// ResolveNotificationAddress finds the settlement notification address of a participant.
func (r *Resolver) ResolveNotificationAddress(ctx context.Context, participantName string) (string, bool) {
	var endpoints []endpointPayload
	resp, err := r.http.R().
		SetContext(ctx).
		SetPathParam("name", participantName).
		Get("/participants/{name}/endpoints")
	if err == nil && resp.IsSuccess() {
		err = json.Unmarshal(resp.Body(), &endpoints)
	} else if err == nil {
		err = fmt.Errorf("directory returned %d", resp.StatusCode())
	}
	if err != nil {
		r.metrics.RecordDirectoryLookup("address", "error")
		r.logger.Warn("Failed to fetch participant endpoints",
			slog.String("participant", participantName),
			slog.Any("error", err),
		)
		return "", false
	}

	for _, ep := range endpoints {
		if ep.Type != NotificationEndpointType {
			continue
		}
		if addr, ok := UsableAddress(ep.Value); ok {
			r.metrics.RecordDirectoryLookup("address", "hit")
			return addr, true
		}
		r.logger.Debug("Ignoring placeholder notification address",
			slog.String("participant", participantName),
			slog.String("value", ep.Value),
		)
	}
	r.metrics.RecordDirectoryLookup("address", "miss")
	return "", false
}

// Refresh re-fetches the account map and stores it in the cache.
func (r *Resolver) Refresh(ctx context.Context) error {
	_, err := r.refresh(ctx)
	return err
}

func (r *Resolver) accounts(ctx context.Context) (AccountMap, error) {
	accounts, ok, err := r.cache.Load(ctx)
	if err != nil {
		r.logger.Warn("Account cache read failed, fetching live", slog.Any("error", err))
	}
	if ok {
		return accounts, nil
	}
	return r.refresh(ctx)
}

// refresh collapses concurrent fetches into one directory call.
func (r *Resolver) refresh(ctx context.Context) (AccountMap, error) {
	v, err, _ := r.group.Do("accounts", func() (any, error) {
		accounts, err := r.fetchAccounts(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Store(ctx, accounts, r.ttl); err != nil {
			r.logger.Warn("Account cache write failed", slog.Any("error", err))
		}
		return accounts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(AccountMap), nil
}

func (r *Resolver) fetchAccounts(ctx context.Context) (AccountMap, error) {
	resp, err := r.http.R().SetContext(ctx).Get("/participants")
	if err != nil {
		return nil, domain.NewNetworkError("list_participants", err)
	}
	if !resp.IsSuccess() {
		err := fmt.Errorf("directory returned %d", resp.StatusCode())
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, domain.NewNetworkError("list_participants", err)
		}
		return nil, domain.NewFatalNetworkError("list_participants", err)
	}

	var participants []participantPayload
	if err := json.Unmarshal(resp.Body(), &participants); err != nil {
		return nil, domain.NewFatalNetworkError("list_participants", err)
	}

	accounts := make(AccountMap)
	for _, p := range participants {
		for _, a := range p.Accounts {
			id := a.ID.String()
			if id == "" {
				continue
			}
			accounts[id] = domain.ParticipantIdentity{
				Name:        p.Name,
				Currency:    a.Currency,
				AccountType: a.LedgerAccountType,
			}
		}
	}
	return accounts, nil
}

// UsableAddress rejects templated placeholders and anything that is not a single
// bare mail address.
func UsableAddress(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" || strings.ContainsAny(v, "{}$<>") {
		return "", false
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return "", false
	}
	return addr.Address, true
}

var _ domain.ParticipantDirectory = (*Resolver)(nil)
