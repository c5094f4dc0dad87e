package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS notifications (
	settlement_id  VARCHAR(128) NOT NULL,
	participant_id VARCHAR(128) NOT NULL,
	amount         TEXT         NOT NULL,
	currency       VARCHAR(3)   NOT NULL,
	reference      TEXT         NOT NULL,
	settled_at     TIMESTAMPTZ  NOT NULL,
	created_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	PRIMARY KEY (settlement_id, participant_id)
)`

// PostgresStore is the notification store for multi-instance deployments
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to dsn, verifies the connection and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// InsertIfAbsent stores rec unless the pair already exists
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, rec *domain.NotificationRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (settlement_id, participant_id, amount, currency, reference, settled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (settlement_id, participant_id) DO NOTHING`,
		rec.SettlementID, rec.ParticipantID, rec.Amount, rec.Currency, rec.Reference, rec.SettledAt, rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return n == 1, nil
}

// Exists reports whether the pair already has a record
func (s *PostgresStore) Exists(ctx context.Context, settlementID, participantID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE settlement_id = $1 AND participant_id = $2)`,
		settlementID, participantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup notification: %w", err)
	}
	return exists, nil
}

// CountBySettlement counts distinct participants that confirmed
func (s *PostgresStore) CountBySettlement(ctx context.Context, settlementID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE settlement_id = $1`, settlementID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

// ListBySettlement returns all records of a settlement, oldest first
func (s *PostgresStore) ListBySettlement(ctx context.Context, settlementID string) ([]domain.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT settlement_id, participant_id, amount, currency, reference, settled_at, created_at
		FROM notifications
		WHERE settlement_id = $1
		ORDER BY created_at ASC, participant_id ASC`, settlementID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var recs []domain.NotificationRecord
	for rows.Next() {
		var r domain.NotificationRecord
		if err := rows.Scan(&r.SettlementID, &r.ParticipantID, &r.Amount, &r.Currency, &r.Reference, &r.SettledAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
