package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"
	"github.com/Migyaba/external-settlement-service/internal/infra"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	accounts  map[string]string // account id -> participant name
	addresses map[string]string // participant name -> address
}

func (d *fakeDirectory) ResolveParticipant(_ context.Context, accountID string) (*domain.ParticipantIdentity, bool) {
	name, ok := d.accounts[accountID]
	if !ok {
		return nil, false
	}
	return &domain.ParticipantIdentity{Name: name, Currency: "USD", AccountType: "POSITION"}, true
}

func (d *fakeDirectory) ResolveNotificationAddress(_ context.Context, name string) (string, bool) {
	addr, ok := d.addresses[name]
	return addr, ok
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []domain.Message
	failFor  map[string]error
	panicFor string
	block    chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (m *fakeMessenger) Send(ctx context.Context, msg domain.Message) error {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxSeen.Load()
		if cur <= prev || m.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if msg.Recipient == m.panicFor && m.panicFor != "" {
		panic("smtp client exploded")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[msg.Recipient]; err != nil {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMessenger) messages() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.sent...)
}

func position(id, accountID, amount string) domain.ParticipantPosition {
	return domain.ParticipantPosition{
		ParticipantID: id,
		Accounts: []domain.AccountPosition{
			{AccountID: accountID, Currency: "USD", NetAmount: decimal.RequireFromString(amount)},
		},
	}
}

func finalization() domain.Finalization {
	return domain.Finalization{
		SettlementID: "42",
		State:        domain.StateCommitted,
		Participants: []domain.ParticipantPosition{
			position("1", "10", "-100"),
			position("2", "20", "100"),
			position("3", "30", "0"),
			{ParticipantID: "4"},
		},
		Effects: []domain.Effect{
			domain.EffectOK(domain.EffectAccountSettled, "42/2/20"),
			domain.EffectFailed(domain.EffectSettlementState, "42->SETTLED", errors.New("hub rejected request")),
		},
	}
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		accounts:  map[string]string{"10": "dfsp-a", "20": "dfsp-b", "30": "dfsp-c"},
		addresses: map[string]string{"dfsp-a": "ops@dfsp-a.org", "dfsp-b": "ops@dfsp-b.org"},
	}
}

func TestNotifier_FanOut(t *testing.T) {
	messenger := &fakeMessenger{failFor: map[string]error{"ops@dfsp-b.org": errors.New("mailbox full")}}
	n := NewNotifier(newDirectory(), messenger, "ops@hub.org", 2, infra.NewMetrics())

	report := n.Notify(context.Background(), finalization())

	require.Len(t, report.Results, 4)
	assert.Equal(t, DeliveryDelivered, report.Results[0].Status)
	assert.Equal(t, "dfsp-a", report.Results[0].Name)
	assert.Equal(t, DeliveryFailed, report.Results[1].Status)
	assert.Equal(t, "mailbox full", report.Results[1].Reason)
	assert.Equal(t, DeliverySkipped, report.Results[2].Status, "dfsp-c has no address")
	assert.Equal(t, DeliverySkipped, report.Results[3].Status, "participant without accounts")
	assert.True(t, report.OperatorSent)

	sent := messenger.messages()
	require.Len(t, sent, 2)

	var summary domain.Message
	for _, m := range sent {
		if m.Kind == domain.MessageOperator {
			summary = m
		}
	}
	assert.Equal(t, "ops@hub.org", summary.Recipient)
	assert.Contains(t, summary.Body, "Participants: 4, notified: 1, skipped: 2, failed: 1")
	assert.Contains(t, summary.Body, "participant 2 failed: mailbox full")
	assert.Contains(t, summary.Body, "42->SETTLED failed")
	assert.NotContains(t, summary.Body, "participant 1 ")
}

func TestNotifier_ParticipantMessage(t *testing.T) {
	messenger := &fakeMessenger{}
	n := NewNotifier(newDirectory(), messenger, "ops@hub.org", 1, nil)

	fin := finalization()
	fin.Participants = fin.Participants[:1]
	n.Notify(context.Background(), fin)

	sent := messenger.messages()
	require.Len(t, sent, 2)
	msg := sent[0]
	assert.Equal(t, domain.MessageParticipant, msg.Kind)
	assert.Equal(t, "ops@dfsp-a.org", msg.Recipient)
	assert.Equal(t, "1", msg.ParticipantID)
	assert.Equal(t, "Settlement 42 finalized", msg.Subject)
	assert.True(t, strings.Contains(msg.Body, "-100 USD"))
}

func TestNotifier_BoundedConcurrency(t *testing.T) {
	messenger := &fakeMessenger{block: make(chan struct{})}
	dir := &fakeDirectory{accounts: map[string]string{}, addresses: map[string]string{}}
	fin := domain.Finalization{SettlementID: "7"}
	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		dir.accounts[id] = "dfsp-" + id
		dir.addresses["dfsp-"+id] = id + "@dfsp.org"
		fin.Participants = append(fin.Participants, position(id, id, "1"))
	}
	n := NewNotifier(dir, messenger, "ops@hub.org", 2, nil)

	done := make(chan Report)
	go func() { done <- n.Notify(context.Background(), fin) }()

	time.Sleep(50 * time.Millisecond)
	close(messenger.block)
	report := <-done

	assert.Equal(t, 6, report.Count(DeliveryDelivered))
	assert.LessOrEqual(t, messenger.maxSeen.Load(), int32(2))
}

func TestNotifier_PanicIsolated(t *testing.T) {
	messenger := &fakeMessenger{panicFor: "ops@dfsp-a.org"}
	n := NewNotifier(newDirectory(), messenger, "ops@hub.org", 4, nil)

	fin := finalization()
	fin.Participants = fin.Participants[:2]
	report := n.Notify(context.Background(), fin)

	assert.Equal(t, DeliveryFailed, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Reason, "panic")
	assert.Equal(t, DeliveryDelivered, report.Results[1].Status)
	assert.True(t, report.OperatorSent)
}

func TestNotifier_OperatorFailureAndMissingOperator(t *testing.T) {
	messenger := &fakeMessenger{failFor: map[string]error{"ops@hub.org": errors.New("relay down")}}
	report := NewNotifier(newDirectory(), messenger, "ops@hub.org", 1, nil).Notify(context.Background(), finalization())
	assert.False(t, report.OperatorSent)
	assert.Equal(t, "relay down", report.OperatorError)

	report = NewNotifier(newDirectory(), &fakeMessenger{}, "", 1, nil).Notify(context.Background(), finalization())
	assert.False(t, report.OperatorSent)
	assert.NotEmpty(t, report.OperatorError)
}
