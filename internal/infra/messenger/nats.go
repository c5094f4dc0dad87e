package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Envelope is the wire form of a stakeholder message on NATS.
type Envelope struct {
	ID            uuid.UUID      `json:"id"`
	Type          string         `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Message       domain.Message `json:"message"`
}

// NATSMessenger publishes stakeholder messages for a downstream mail relay.
type NATSMessenger struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSMessenger connects to url and publishes under prefix.
func NewNATSMessenger(url, prefix string) (*NATSMessenger, error) {
	logger := slog.Default().With("module", "nats_messenger")

	conn, err := nats.Connect(url,
		nats.Name("external-settlement-service"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, domain.NewNetworkError("nats_connect", err)
	}

	return &NATSMessenger{conn: conn, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject a message of kind is published on.
func (m *NATSMessenger) Subject(kind domain.MessageKind) string {
	return m.prefix + "." + string(kind)
}

func (m *NATSMessenger) Send(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewEnvelope(ctx, msg, time.Now()))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := m.conn.Publish(m.Subject(msg.Kind), data); err != nil {
		return domain.NewNetworkError("nats_publish", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (m *NATSMessenger) Close() error {
	return m.conn.Drain()
}

// NewEnvelope wraps msg with an id and the request correlation id.
func NewEnvelope(ctx context.Context, msg domain.Message, now time.Time) Envelope {
	return Envelope{
		ID:            uuid.New(),
		Type:          "settlement.notification." + string(msg.Kind),
		Timestamp:     now.UTC(),
		CorrelationID: domain.CorrelationID(ctx),
		Message:       msg,
	}
}

var _ domain.Messenger = (*NATSMessenger)(nil)
