package hub

import (
	"strings"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	"github.com/shopspring/decimal"
)

// settlementPayload is the hub's settlement document. Older hub releases list
// participants under participantSettlements and name identities participantId.
type settlementPayload struct {
	ID                     domain.FlexID        `json:"id"`
	SettlementID           domain.FlexID        `json:"settlementId"`
	State                  string               `json:"state"`
	Participants           []participantPayload `json:"participants"`
	ParticipantSettlements []participantPayload `json:"participantSettlements"`
}

type participantPayload struct {
	ID            domain.FlexID    `json:"id"`
	ParticipantID domain.FlexID    `json:"participantId"`
	Accounts      []accountPayload `json:"accounts"`
}

type accountPayload struct {
	ID                  domain.FlexID   `json:"id"`
	AccountID           domain.FlexID   `json:"participantAccountId"`
	State               string          `json:"state"`
	NetSettlementAmount *amountPayload  `json:"netSettlementAmount"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
}

type amountPayload struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type stateRequest struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func firstID(ids ...domain.FlexID) string {
	for _, id := range ids {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

// toSnapshot normalises a payload into the canonical snapshot.
func (p *settlementPayload) toSnapshot(requestedID string) *domain.Snapshot {
	raw := p.Participants
	// an empty participants list defers to the legacy field
	if len(raw) == 0 {
		raw = p.ParticipantSettlements
	}

	snap := &domain.Snapshot{
		ID:           firstID(p.ID, p.SettlementID, domain.FlexID(requestedID)),
		State:        domain.SettlementState(strings.TrimSpace(p.State)),
		Participants: make([]domain.ParticipantPosition, 0, len(raw)),
	}

	for _, rp := range raw {
		pos := domain.ParticipantPosition{
			ParticipantID: firstID(rp.ID, rp.ParticipantID),
			Accounts:      make([]domain.AccountPosition, 0, len(rp.Accounts)),
		}
		for _, ra := range rp.Accounts {
			acc := domain.AccountPosition{
				AccountID: firstID(ra.ID, ra.AccountID),
				Currency:  ra.Currency,
				NetAmount: ra.Amount,
				State:     ra.State,
			}
			if ra.NetSettlementAmount != nil {
				acc.NetAmount = ra.NetSettlementAmount.Amount
				if ra.NetSettlementAmount.Currency != "" {
					acc.Currency = ra.NetSettlementAmount.Currency
				}
			}
			pos.Accounts = append(pos.Accounts, acc)
		}
		snap.Participants = append(snap.Participants, pos)
	}

	return snap
}
