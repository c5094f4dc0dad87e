package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Reconciler is the engine surface the HTTP layer needs.
type Reconciler interface {
	Reconcile(ctx context.Context, sub domain.Submission) (*domain.Outcome, error)
	Status(ctx context.Context, settlementID string) (*domain.SettlementStatus, error)
}

// submittedAmount decodes a JSON number or string and keeps its original text.
type submittedAmount struct {
	Value decimal.Decimal
	Text  string
}

func (a *submittedAmount) UnmarshalJSON(data []byte) error {
	if err := a.Value.UnmarshalJSON(data); err != nil {
		return err
	}
	if text := strings.TrimSpace(string(data)); text != "null" {
		a.Text = strings.Trim(text, `"`)
	}
	return nil
}

type notificationRequest struct {
	ParticipantID string          `json:"participantId"`
	Amount        submittedAmount `json:"amount"`
	Currency      string          `json:"currency"`
	Reference     string          `json:"reference"`
	SettledAt     string          `json:"settledAt"`
}

type notificationResponse struct {
	Status            domain.ReconcileStatus `json:"status"`
	Message           string                 `json:"message"`
	SettlementID      string                 `json:"settlementId"`
	ParticipantID     string                 `json:"participantId"`
	NotificationCount int64                  `json:"notificationCount"`
	TotalParticipants int                    `json:"totalParticipants"`
	Duplicate         bool                   `json:"duplicate"`
	Effects           []domain.Effect        `json:"effects,omitempty"`
}

type statusDetail struct {
	ParticipantID string    `json:"participantId"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Reference     string    `json:"reference"`
	SettledAt     time.Time `json:"settledAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

type statusResponse struct {
	SettlementID      string         `json:"settlementId"`
	NotificationCount int            `json:"notificationCount"`
	Details           []statusDetail `json:"details"`
}

// Handler serves the external settlement endpoints.
type Handler struct {
	reconciler Reconciler
	now        func() time.Time
}

// NewHandler creates a handler over reconciler.
func NewHandler(reconciler Reconciler) *Handler {
	return &Handler{reconciler: reconciler, now: time.Now}
}

// Notify handles POST /external-settlement/:settlementId
func (h *Handler) Notify(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.NewSettlementError(domain.KindValidation, "malformed body: %v", err))
		return
	}

	out, err := h.reconciler.Reconcile(c.Request.Context(), domain.Submission{
		SettlementID:  c.Param("settlementId"),
		ParticipantID: req.ParticipantID,
		Amount:        req.Amount.Value,
		AmountText:    req.Amount.Text,
		Currency:      req.Currency,
		Reference:     req.Reference,
		SettledAt:     req.SettledAt,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, notificationResponse{
		Status:            out.Status,
		Message:           out.Message,
		SettlementID:      out.SettlementID,
		ParticipantID:     out.ParticipantID,
		NotificationCount: out.Notified,
		TotalParticipants: out.Needed,
		Duplicate:         out.Duplicate,
		Effects:           out.Effects,
	})
}

// Status handles GET /external-settlement/:settlementId/status
func (h *Handler) Status(c *gin.Context) {
	status, err := h.reconciler.Status(c.Request.Context(), c.Param("settlementId"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	details := make([]statusDetail, 0, len(status.Details))
	for _, d := range status.Details {
		details = append(details, statusDetail{
			ParticipantID: d.ParticipantID,
			Amount:        d.Amount,
			Currency:      d.Currency,
			Reference:     d.Reference,
			SettledAt:     d.SettledAt,
			CreatedAt:     d.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, statusResponse{
		SettlementID:      status.SettlementID,
		NotificationCount: status.NotificationCount,
		Details:           details,
	})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
