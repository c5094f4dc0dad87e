package domain

// ReconcileStatus is the externally visible result of one accepted confirmation.
type ReconcileStatus string

const (
	StatusFinalized     ReconcileStatus = "FINALIZED"
	StatusPendingQuorum ReconcileStatus = "PENDING_QUORUM"
)

// Outcome describes what happened to a confirmation that passed validation.
type Outcome struct {
	Status        ReconcileStatus
	Message       string
	SettlementID  string
	ParticipantID string
	Notified      int64
	Needed        int
	Duplicate     bool
	Effects       []Effect
}

// Finalization is handed to the stakeholder fan-out once quorum is reached.
type Finalization struct {
	SettlementID  string
	State         SettlementState
	Participants  []ParticipantPosition
	Effects       []Effect
	CorrelationID string
}

// SettlementStatus is the locally recorded view of a settlement.
type SettlementStatus struct {
	SettlementID      string
	NotificationCount int
	Details           []NotificationRecord
}
