package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NotificationRecord is a durably recorded participant confirmation.
// At most one record exists per (settlement, participant) pair; records are never mutated.
type NotificationRecord struct {
	SettlementID  string    `gorm:"primaryKey;column:settlement_id;size:128" json:"settlementId"`
	ParticipantID string    `gorm:"primaryKey;column:participant_id;size:128" json:"participantId"`
	Amount        string    `gorm:"not null" json:"amount"` // exactly as submitted
	Currency      string    `gorm:"size:3;not null" json:"currency"`
	Reference     string    `gorm:"not null" json:"reference"`
	SettledAt     time.Time `json:"settledAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TableName pins the table name shared by every storage backend.
func (NotificationRecord) TableName() string {
	return "notifications"
}

// Submission is an inbound settlement confirmation from an external party.
type Submission struct {
	SettlementID  string
	ParticipantID string
	Amount        decimal.Decimal
	AmountText    string // the amount exactly as submitted, if known
	Currency      string
	Reference     string
	SettledAt     string // optional, ISO-8601
}

// SubmittedAmount returns the amount in the form the participant sent it.
func (s Submission) SubmittedAmount() string {
	if t := strings.TrimSpace(s.AmountText); t != "" {
		return t
	}
	return s.Amount.String()
}

// Validate checks the shape of a submission before any hub call is made.
func (s Submission) Validate() error {
	switch {
	case strings.TrimSpace(s.SettlementID) == "":
		return NewSettlementError(KindValidation, "settlementId is required")
	case strings.TrimSpace(s.ParticipantID) == "":
		return NewSettlementError(KindValidation, "participantId is required")
	case !s.Amount.IsPositive():
		return NewSettlementError(KindValidation, "amount must be positive, got %s", s.Amount.String())
	case !isCurrencyCode(s.Currency):
		return NewSettlementError(KindValidation, "currency must be a 3-letter code, got %q", s.Currency)
	case strings.TrimSpace(s.Reference) == "":
		return NewSettlementError(KindValidation, "reference is required")
	}
	return nil
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

var settledAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseSettledAt parses a participant-supplied timestamp. Naive timestamps are read
// as UTC. Empty or unparsable input falls back to now.
func ParseSettledAt(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC()
	}
	if strings.HasSuffix(raw, "z") {
		raw = raw[:len(raw)-1] + "Z"
	}
	for _, layout := range settledAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return now.UTC()
}

// NewRecord builds the persisted form of an accepted submission.
func NewRecord(s Submission, now time.Time) *NotificationRecord {
	return &NotificationRecord{
		SettlementID:  strings.TrimSpace(s.SettlementID),
		ParticipantID: strings.TrimSpace(s.ParticipantID),
		Amount:        s.SubmittedAmount(),
		Currency:      s.Currency,
		Reference:     s.Reference,
		SettledAt:     ParseSettledAt(s.SettledAt, now),
		CreatedAt:     now.UTC(),
	}
}
