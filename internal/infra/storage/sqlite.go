package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteStore is the gorm-backed notification store
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (and migrates) the database file at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	// SQLite allows one writer; serialise at the pool instead of retrying SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.NotificationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ======================================================================================
// Notification Operations
// ======================================================================================

// InsertIfAbsent stores rec unless a record for the same pair exists.
// It reports whether a new row was written.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, rec *domain.NotificationRecord) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, fmt.Errorf("insert notification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Exists reports whether the pair already has a record
func (s *SQLiteStore) Exists(ctx context.Context, settlementID, participantID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&domain.NotificationRecord{}).
		Where("settlement_id = ? AND participant_id = ?", settlementID, participantID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("lookup notification: %w", err)
	}
	return n > 0, nil
}

// CountBySettlement counts distinct participants that confirmed
func (s *SQLiteStore) CountBySettlement(ctx context.Context, settlementID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&domain.NotificationRecord{}).
		Where("settlement_id = ?", settlementID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

// ListBySettlement returns all records of a settlement, oldest first
func (s *SQLiteStore) ListBySettlement(ctx context.Context, settlementID string) ([]domain.NotificationRecord, error) {
	var recs []domain.NotificationRecord
	err := s.db.WithContext(ctx).
		Where("settlement_id = ?", settlementID).
		Order("created_at ASC, participant_id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return recs, nil
}

// Close releases the underlying connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
