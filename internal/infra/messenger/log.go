package messenger

import (
	"context"
	"log/slog"

	"github.com/Migyaba/external-settlement-service/internal/domain"
)

// LogMessenger writes stakeholder messages to the structured log. It is the
// default when no mail relay or broker is configured.
type LogMessenger struct {
	logger *slog.Logger
}

// NewLogMessenger creates a messenger writing to logger, or the default logger if nil.
func NewLogMessenger(logger *slog.Logger) *LogMessenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMessenger{logger: logger.With("module", "messenger")}
}

func (m *LogMessenger) Send(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "Stakeholder notification",
		slog.String("kind", string(msg.Kind)),
		slog.String("recipient", msg.Recipient),
		slog.String("settlement_id", msg.SettlementID),
		slog.String("participant_id", msg.ParticipantID),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

var _ domain.Messenger = (*LogMessenger)(nil)
