package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"
	"github.com/Migyaba/external-settlement-service/internal/infra"
)

// Dispatcher hands finalized settlements to the Notifier, detached from the
// request that reached quorum. Drain waits for in-flight fan-outs on shutdown.
type Dispatcher struct {
	notifier *Notifier
	async    bool
	timeout  time.Duration
	metrics  *infra.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Each fan-out is bounded by timeout.
func NewDispatcher(notifier *Notifier, async bool, timeout time.Duration, metrics *infra.Metrics) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		async:    async,
		timeout:  timeout,
		metrics:  metrics,
		logger:   slog.Default().With("module", "dispatcher"),
	}
}

// OnFinalized starts the stakeholder fan-out. Once draining has begun new
// fan-outs run inline so none are dropped.
func (d *Dispatcher) OnFinalized(ctx context.Context, fin domain.Finalization) {
	ctx = context.WithoutCancel(ctx)

	d.mu.Lock()
	if !d.async || d.draining {
		d.mu.Unlock()
		d.run(ctx, fin)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.run(ctx, fin)
	}()
}

func (d *Dispatcher) run(ctx context.Context, fin domain.Finalization) Report {
	d.metrics.FanoutStarted()
	defer d.metrics.FanoutFinished()
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("Stakeholder fan-out panic recovered",
				slog.String("settlement_id", fin.SettlementID),
				slog.Any("panic", rec),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	report := d.notifier.Notify(ctx, fin)
	d.logger.InfoContext(ctx, "Stakeholder fan-out completed",
		slog.String("settlement_id", fin.SettlementID),
		slog.String("correlation_id", fin.CorrelationID),
		slog.Int("participants", len(fin.Participants)),
		slog.Int("delivered", report.Count(DeliveryDelivered)),
		slog.Int("skipped", report.Count(DeliverySkipped)),
		slog.Int("failed", report.Count(DeliveryFailed)),
		slog.Bool("operator_sent", report.OperatorSent),
	)

	effect := domain.EffectOK(domain.EffectStakeholderNotify, fin.SettlementID)
	if !report.OperatorSent || report.Count(DeliveryFailed) > 0 {
		effect = domain.Effect{Name: domain.EffectStakeholderNotify, Target: fin.SettlementID, Reason: "partial delivery"}
	}
	d.metrics.RecordEffect(effect)
	return report
}

// Drain stops detaching new fan-outs and waits for running ones until ctx ends.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Stakeholder fan-outs drained")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Stakeholder fan-outs still running at shutdown deadline", slog.Any("error", ctx.Err()))
		return ctx.Err()
	}
}

var _ domain.FinalizationHandler = (*Dispatcher)(nil)
