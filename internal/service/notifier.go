package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Migyaba/external-settlement-service/internal/domain"
	"github.com/Migyaba/external-settlement-service/internal/infra"

	"golang.org/x/sync/errgroup"
)

// DeliveryStatus is the per-participant result of the closure fan-out.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliverySkipped   DeliveryStatus = "skipped" // unresolved participant or no usable address
	DeliveryFailed    DeliveryStatus = "failed"
)

// ParticipantResult describes what happened for one participant.
type ParticipantResult struct {
	ParticipantID string
	Name          string
	Address       string
	Status        DeliveryStatus
	Reason        string
}

// Report summarises a fan-out. It is informational only.
type Report struct {
	SettlementID  string
	Results       []ParticipantResult
	OperatorSent  bool
	OperatorError string
}

// Count returns how many participants ended in status.
func (r Report) Count(status DeliveryStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Notifier tells every participant, and then the operator, that a settlement closed.
type Notifier struct {
	directory   domain.ParticipantDirectory
	messenger   domain.Messenger
	operator    string
	concurrency int
	metrics     *infra.Metrics
	logger      *slog.Logger
}

// NewNotifier creates a notifier sending at most concurrency participant messages at once.
func NewNotifier(directory domain.ParticipantDirectory, messenger domain.Messenger, operator string, concurrency int, metrics *infra.Metrics) *Notifier {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Notifier{
		directory:   directory,
		messenger:   messenger,
		operator:    operator,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      slog.Default().With("module", "notifier"),
	}
}

// Notify runs the fan-out. Failures for one participant never affect another.
func (n *Notifier) Notify(ctx context.Context, fin domain.Finalization) Report {
	results := make([]ParticipantResult, len(fin.Participants))

	var g errgroup.Group
	g.SetLimit(n.concurrency)
	for i, p := range fin.Participants {
		g.Go(func() error {
			results[i] = n.notifyParticipant(ctx, fin, p)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{SettlementID: fin.SettlementID, Results: results}

	if n.operator == "" {
		report.OperatorError = "no operator address configured"
		n.logger.WarnContext(ctx, "Operator summary skipped", slog.String("settlement_id", fin.SettlementID))
		return report
	}

	err := n.send(ctx, operatorSummary(fin, report, n.operator))
	if err != nil {
		report.OperatorError = err.Error()
		n.logger.WarnContext(ctx, "Operator summary failed",
			slog.String("settlement_id", fin.SettlementID),
			slog.Any("error", err),
		)
	} else {
		report.OperatorSent = true
	}
	return report
}

func (n *Notifier) notifyParticipant(ctx context.Context, fin domain.Finalization, p domain.ParticipantPosition) (res ParticipantResult) {
	res = ParticipantResult{ParticipantID: p.ParticipantID}
	defer func() {
		if rec := recover(); rec != nil {
			res.Status = DeliveryFailed
			res.Reason = fmt.Sprintf("panic: %v", rec)
			n.logger.Error("Participant notification panic recovered", slog.Any("panic", rec))
		}
	}()

	account, ok := p.PrimaryAccount()
	if !ok {
		return n.skip(ctx, res, "no accounts in settlement")
	}

	identity, ok := n.directory.ResolveParticipant(ctx, account.AccountID)
	if !ok {
		return n.skip(ctx, res, "account "+account.AccountID+" not in directory")
	}
	res.Name = identity.Name

	addr, ok := n.directory.ResolveNotificationAddress(ctx, identity.Name)
	if !ok {
		return n.skip(ctx, res, "no notification address")
	}
	res.Address = addr

	if err := n.send(ctx, participantMessage(fin, p, account, identity.Name, addr)); err != nil {
		res.Status = DeliveryFailed
		res.Reason = err.Error()
		n.logger.WarnContext(ctx, "Participant notification failed",
			slog.String("settlement_id", fin.SettlementID),
			slog.String("participant", identity.Name),
			slog.Any("error", err),
		)
		return res
	}

	res.Status = DeliveryDelivered
	return res
}

func (n *Notifier) skip(ctx context.Context, res ParticipantResult, reason string) ParticipantResult {
	res.Status = DeliverySkipped
	res.Reason = reason
	n.logger.InfoContext(ctx, "Participant notification skipped",
		slog.String("participant_id", res.ParticipantID),
		slog.String("reason", reason),
	)
	return res
}

func (n *Notifier) send(ctx context.Context, msg domain.Message) error {
	err := n.messenger.Send(ctx, msg)
	n.metrics.RecordMessage(msg.Kind, err)
	return err
}

func participantMessage(fin domain.Finalization, p domain.ParticipantPosition, account domain.AccountPosition, name, addr string) domain.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Settlement %s has been finalized.\n", fin.SettlementID)
	fmt.Fprintf(&b, "All %d participants confirmed external settlement.\n", len(fin.Participants))
	fmt.Fprintf(&b, "Participant: %s (%s)\n", name, p.ParticipantID)
	fmt.Fprintf(&b, "Net settlement position: %s %s\n", account.NetAmount.String(), account.Currency)

	return domain.Message{
		Kind:          domain.MessageParticipant,
		Recipient:     addr,
		Subject:       fmt.Sprintf("Settlement %s finalized", fin.SettlementID),
		Body:          b.String(),
		SettlementID:  fin.SettlementID,
		ParticipantID: p.ParticipantID,
	}
}

func operatorSummary(fin domain.Finalization, report Report, operator string) domain.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Settlement %s finalized.\n", fin.SettlementID)
	fmt.Fprintf(&b, "Participants: %d, notified: %d, skipped: %d, failed: %d\n",
		len(fin.Participants), report.Count(DeliveryDelivered), report.Count(DeliverySkipped), report.Count(DeliveryFailed))

	for _, res := range report.Results {
		if res.Status == DeliveryDelivered {
			continue
		}
		fmt.Fprintf(&b, "- participant %s %s: %s\n", res.ParticipantID, res.Status, res.Reason)
	}
	for _, e := range domain.FailedEffects(fin.Effects) {
		fmt.Fprintf(&b, "- hub update %s %s failed: %s\n", e.Name, e.Target, e.Reason)
	}

	return domain.Message{
		Kind:         domain.MessageOperator,
		Recipient:    operator,
		Subject:      fmt.Sprintf("Settlement %s finalized (%d/%d notified)", fin.SettlementID, report.Count(DeliveryDelivered), len(fin.Participants)),
		Body:         b.String(),
		SettlementID: fin.SettlementID,
	}
}
