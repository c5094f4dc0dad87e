package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"
	"github.com/Migyaba/external-settlement-service/internal/infra"

	"github.com/shopspring/decimal"
)

// Reconciler validates external settlement confirmations against the hub,
// records them, and finalizes the settlement once every participant confirmed.
//
// It holds no per-settlement state: the store is the only source of truth for
// "who has confirmed", and the hub snapshot is re-read on every call.
type Reconciler struct {
	hub       domain.SettlementHub
	store     domain.NotificationStore
	finalizer domain.FinalizationHandler
	tolerance decimal.Decimal
	metrics   *infra.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithTolerance overrides the amount tolerance.
func WithTolerance(tol decimal.Decimal) Option {
	return func(r *Reconciler) { r.tolerance = tol }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *infra.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock replaces the receipt-time clock.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a reconciler. finalizer may be nil.
func NewReconciler(hub domain.SettlementHub, store domain.NotificationStore, finalizer domain.FinalizationHandler, opts ...Option) *Reconciler {
	r := &Reconciler{
		hub:       hub,
		store:     store,
		finalizer: finalizer,
		tolerance: domain.DefaultAmountTolerance,
		now:       time.Now,
		logger:    slog.Default().With("module", "reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile processes one confirmation. Validation and hub-read failures are
// returned as *domain.SettlementError; hub writes are advisory and reported in
// the outcome's effects.
func (r *Reconciler) Reconcile(ctx context.Context, sub domain.Submission) (*domain.Outcome, error) {
	out, err := r.reconcile(ctx, sub)
	if err != nil {
		kind, _ := domain.KindOf(err)
		r.metrics.RecordRejection(kind)
		r.logger.WarnContext(ctx, "Settlement notification rejected",
			slog.String("settlement_id", sub.SettlementID),
			slog.String("participant_id", sub.ParticipantID),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
	}
	return out, err
}

func (r *Reconciler) reconcile(ctx context.Context, sub domain.Submission) (*domain.Outcome, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	settlementID := strings.TrimSpace(sub.SettlementID)

	// 1. Authoritative snapshot
	snap, err := r.hub.FetchSettlement(ctx, settlementID)
	if err != nil {
		if _, ok := domain.KindOf(err); ok {
			return nil, err
		}
		return nil, domain.WrapSettlementError(domain.KindHubUnreachable, err, "settlement %s", settlementID)
	}

	// 2. State gate
	if !snap.State.Reconcilable() {
		return nil, domain.NewSettlementError(domain.KindInvalidSettlementState,
			"settlement %s is in state %q", settlementID, snap.State)
	}

	// 3. Membership
	participant, ok := snap.FindParticipant(sub.ParticipantID)
	if !ok {
		return nil, domain.NewSettlementError(domain.KindParticipantNotInSettlement,
			"participant %s is not part of settlement %s", sub.ParticipantID, settlementID)
	}

	// 4. Business validation
	account, err := r.validatePosition(participant, sub)
	if err != nil {
		return nil, err
	}

	// 5-6. Idempotent record
	var effects []domain.Effect
	duplicate, err := r.record(ctx, sub)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordNotification(duplicate)

	// 7. Per-account push, only for the request that wrote the record
	if !duplicate {
		effects = append(effects, r.settleAccount(ctx, settlementID, participant.ParticipantID, account.AccountID, sub.Reference))
	}

	// 8. Quorum against this snapshot's participant set
	count, err := r.store.CountBySettlement(ctx, settlementID)
	if err != nil {
		return nil, domain.WrapSettlementError(domain.KindStoreUnavailable, err, "count settlement %s", settlementID)
	}
	needed := len(snap.Participants)

	out := &domain.Outcome{
		Status:        domain.StatusPendingQuorum,
		SettlementID:  settlementID,
		ParticipantID: participant.ParticipantID,
		Notified:      count,
		Needed:        needed,
		Duplicate:     duplicate,
	}

	// 9. Finalization, re-run by every call that observes quorum
	if count >= int64(needed) {
		effects = append(effects, r.finalize(ctx, settlementID, snap)...)
		out.Status = domain.StatusFinalized
		out.Message = fmt.Sprintf("Settlement %s finalized: %d of %d participants confirmed", settlementID, count, needed)
		out.Effects = effects

		r.metrics.RecordFinalization()
		if r.finalizer != nil {
			r.finalizer.OnFinalized(ctx, domain.Finalization{
				SettlementID:  settlementID,
				State:         snap.State,
				Participants:  snap.Participants,
				Effects:       effects,
				CorrelationID: domain.CorrelationID(ctx),
			})
		}
		return out, nil
	}

	// 10. Waiting for the others
	out.Effects = effects
	if duplicate {
		out.Message = fmt.Sprintf("Duplicate notification ignored, %d of %d participants confirmed", count, needed)
	} else {
		out.Message = fmt.Sprintf("Notification recorded, %d of %d participants confirmed", count, needed)
	}
	return out, nil
}

// validatePosition checks the submission against the participant's position in its currency.
func (r *Reconciler) validatePosition(p *domain.ParticipantPosition, sub domain.Submission) (*domain.AccountPosition, error) {
	account, ok := p.AccountInCurrency(sub.Currency)
	if !ok {
		return nil, domain.NewSettlementError(domain.KindNoPositionInCurrency,
			"participant %s has no %s position", p.ParticipantID, sub.Currency)
	}

	if !domain.AmountWithinTolerance(sub.Amount, account.NetAmount, r.tolerance) {
		return nil, domain.NewSettlementError(domain.KindAmountMismatch,
			"expected %s %s, got %s", account.NetAmount.Abs().String(), account.Currency, sub.Amount.String())
	}

	if account.Currency != sub.Currency {
		return nil, domain.NewSettlementError(domain.KindCurrencyMismatch,
			"hub reports %q, got %q", account.Currency, sub.Currency)
	}

	return account, nil
}

// record writes the notification unless the pair was already recorded.
// It reports whether the submission was a duplicate.
func (r *Reconciler) record(ctx context.Context, sub domain.Submission) (bool, error) {
	rec := domain.NewRecord(sub, r.now())

	exists, err := r.store.Exists(ctx, rec.SettlementID, rec.ParticipantID)
	if err != nil {
		return false, domain.WrapSettlementError(domain.KindStoreUnavailable, err, "lookup %s/%s", rec.SettlementID, rec.ParticipantID)
	}
	if exists {
		return true, nil
	}

	inserted, err := r.store.InsertIfAbsent(ctx, rec)
	if err != nil {
		return false, domain.WrapSettlementError(domain.KindStoreUnavailable, err, "record %s/%s", rec.SettlementID, rec.ParticipantID)
	}
	if inserted {
		r.logger.InfoContext(ctx, "Settlement notification recorded",
			slog.String("settlement_id", rec.SettlementID),
			slog.String("participant_id", rec.ParticipantID),
			slog.String("amount", rec.Amount),
			slog.String("currency", rec.Currency),
			slog.String("reference", rec.Reference),
		)
	}
	// A lost insert race is a duplicate like any other
	return !inserted, nil
}

// settleAccount marks the participant's account as settled on the hub.
func (r *Reconciler) settleAccount(ctx context.Context, settlementID, participantID, accountID, reference string) domain.Effect {
	target := settlementID + "/" + participantID + "/" + accountID
	if accountID == "" {
		return r.observe(ctx, domain.EffectFailed(domain.EffectAccountSettled, target, errors.New("hub reported no account id")))
	}

	reason := "External settlement confirmed: " + reference
	err := r.hub.SetParticipantAccountState(context.WithoutCancel(ctx), settlementID, participantID, accountID, domain.StateSettled, reason)
	if err != nil {
		return r.observe(ctx, domain.EffectFailed(domain.EffectAccountSettled, target, err))
	}
	return r.observe(ctx, domain.EffectOK(domain.EffectAccountSettled, target))
}

// finalize pushes SETTLED to the hub, falling back to PS_TRANSFERS_COMMITTED if rejected.
func (r *Reconciler) finalize(ctx context.Context, settlementID string, snap *domain.Snapshot) []domain.Effect {
	if snap.State == domain.StateSettled {
		return nil
	}

	// Writes outlive a disconnecting client; the hub client bounds each call
	writeCtx := context.WithoutCancel(ctx)
	settled := settlementID + "->" + string(domain.StateSettled)
	err := r.hub.SetSettlementState(writeCtx, settlementID, domain.StateSettled)
	if err == nil {
		return []domain.Effect{r.observe(ctx, domain.EffectOK(domain.EffectSettlementState, settled))}
	}
	effects := []domain.Effect{r.observe(ctx, domain.EffectFailed(domain.EffectSettlementState, settled, err))}

	committed := settlementID + "->" + string(domain.StateCommitted)
	if err := r.hub.SetSettlementState(writeCtx, settlementID, domain.StateCommitted); err != nil {
		return append(effects, r.observe(ctx, domain.EffectFailed(domain.EffectSettlementState, committed, err)))
	}
	return append(effects, r.observe(ctx, domain.EffectOK(domain.EffectSettlementState, committed)))
}

func (r *Reconciler) observe(ctx context.Context, e domain.Effect) domain.Effect {
	r.metrics.RecordEffect(e)
	if !e.OK {
		r.logger.WarnContext(ctx, "Advisory hub update failed",
			slog.String("effect", e.Name),
			slog.String("target", e.Target),
			slog.String("reason", e.Reason),
		)
	}
	return e
}

// Status returns the locally recorded confirmations of a settlement.
func (r *Reconciler) Status(ctx context.Context, settlementID string) (*domain.SettlementStatus, error) {
	settlementID = strings.TrimSpace(settlementID)
	if settlementID == "" {
		return nil, domain.NewSettlementError(domain.KindValidation, "settlementId is required")
	}
	recs, err := r.store.ListBySettlement(ctx, settlementID)
	if err != nil {
		return nil, domain.WrapSettlementError(domain.KindStoreUnavailable, err, "list settlement %s", settlementID)
	}
	return &domain.SettlementStatus{
		SettlementID:      settlementID,
		NotificationCount: len(recs),
		Details:           recs,
	}, nil
}
