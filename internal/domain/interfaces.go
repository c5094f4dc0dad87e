package domain

import (
	"context"
)

// SettlementHub is the remote system of record for settlement state.
type SettlementHub interface {
	FetchSettlement(ctx context.Context, settlementID string) (*Snapshot, error)
	SetSettlementState(ctx context.Context, settlementID string, state SettlementState) error
	SetParticipantAccountState(ctx context.Context, settlementID, participantID, accountID string, state SettlementState, reason string) error
}

// NotificationStore persists confirmations. InsertIfAbsent must be atomic with
// respect to the (settlement, participant) key.
type NotificationStore interface {
	InsertIfAbsent(ctx context.Context, rec *NotificationRecord) (bool, error)
	Exists(ctx context.Context, settlementID, participantID string) (bool, error)
	CountBySettlement(ctx context.Context, settlementID string) (int64, error)
	ListBySettlement(ctx context.Context, settlementID string) ([]NotificationRecord, error)
	Close() error
}

// ParticipantIdentity is the directory's view of the owner of a ledger account.
type ParticipantIdentity struct {
	Name        string
	Currency    string
	AccountType string
}

// ParticipantDirectory resolves accounts to participants and participants to
// notification addresses. Lookups fail soft and report absence instead of errors.
type ParticipantDirectory interface {
	ResolveParticipant(ctx context.Context, accountID string) (*ParticipantIdentity, bool)
	ResolveNotificationAddress(ctx context.Context, participantName string) (string, bool)
}

// MessageKind distinguishes participant confirmations from the operator summary.
type MessageKind string

const (
	MessageParticipant MessageKind = "participant"
	MessageOperator    MessageKind = "operator"
)

// Message is one outbound stakeholder notification.
type Message struct {
	Kind          MessageKind `json:"kind"`
	Recipient     string      `json:"recipient"`
	Subject       string      `json:"subject"`
	Body          string      `json:"body"`
	SettlementID  string      `json:"settlementId"`
	ParticipantID string      `json:"participantId,omitempty"`
}

// Messenger delivers a single message to a recipient.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
}

// FinalizationHandler receives settlements that reached quorum.
type FinalizationHandler interface {
	OnFinalized(ctx context.Context, fin Finalization)
}
