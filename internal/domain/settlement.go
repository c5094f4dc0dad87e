package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SettlementState is the hub-side lifecycle state of a settlement.
type SettlementState string

const (
	StateRecorded  SettlementState = "PS_TRANSFERS_RECORDED"
	StateReserved  SettlementState = "PS_TRANSFERS_RESERVED"
	StateCommitted SettlementState = "PS_TRANSFERS_COMMITTED"
	StateSettled   SettlementState = "SETTLED"
)

// reconcilableStates is the allow-list of states in which external confirmations are accepted.
var reconcilableStates = map[SettlementState]struct{}{
	StateRecorded:  {},
	StateReserved:  {},
	StateCommitted: {},
	StateSettled:   {},
}

// Reconcilable reports whether confirmations may be recorded against a settlement in state s.
func (s SettlementState) Reconcilable() bool {
	_, ok := reconcilableStates[s]
	return ok
}

// ReconcilableStates returns the allow-list in a stable order.
func ReconcilableStates() []SettlementState {
	return []SettlementState{StateRecorded, StateReserved, StateCommitted, StateSettled}
}

// DefaultAmountTolerance is the inclusive slack allowed between a confirmed amount
// and the absolute net settlement amount.
var DefaultAmountTolerance = decimal.New(1, -2)

// AccountPosition is one currency account of a participant within a settlement.
type AccountPosition struct {
	AccountID string
	Currency  string
	NetAmount decimal.Decimal // signed; negative means the participant pays
	State     string
}

// ParticipantPosition is a participant's entry in a settlement snapshot.
type ParticipantPosition struct {
	ParticipantID string
	Accounts      []AccountPosition
}

// Snapshot is the hub's authoritative view of a settlement at fetch time.
type Snapshot struct {
	ID           string
	State        SettlementState
	Participants []ParticipantPosition
}

// FindParticipant locates a participant by identifier. Identifiers are compared
// after trimming since hubs render numeric ids inconsistently.
func (s *Snapshot) FindParticipant(participantID string) (*ParticipantPosition, bool) {
	want := strings.TrimSpace(participantID)
	for i := range s.Participants {
		if strings.TrimSpace(s.Participants[i].ParticipantID) == want {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// AccountInCurrency selects the account whose currency code matches, ignoring case
// and surrounding whitespace.
func (p *ParticipantPosition) AccountInCurrency(currency string) (*AccountPosition, bool) {
	want := NormalizeCurrency(currency)
	for i := range p.Accounts {
		if NormalizeCurrency(p.Accounts[i].Currency) == want {
			return &p.Accounts[i], true
		}
	}
	return nil, false
}

// PrimaryAccount returns the first listed account, used for directory lookups.
func (p *ParticipantPosition) PrimaryAccount() (AccountPosition, bool) {
	if len(p.Accounts) == 0 {
		return AccountPosition{}, false
	}
	return p.Accounts[0], true
}

// NormalizeCurrency folds a currency code for comparison.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AmountWithinTolerance compares a submitted amount to |net| with inclusive tolerance.
func AmountWithinTolerance(submitted, net, tolerance decimal.Decimal) bool {
	return submitted.Sub(net.Abs()).Abs().LessThanOrEqual(tolerance)
}
