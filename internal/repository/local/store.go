package local

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	applogger "github.com/mamadbah2/dairysync/pkg/logger"
)

// Origin tells the store where a write comes from.
type Origin int

const (
	// OriginLocal marks the row dirty and bumps its revision.
	OriginLocal Origin = iota
	// OriginRemote stores a confirmed remote read as synced.
	OriginRemote
)

// Store is the on-device source of truth, one table per entity.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open connects to the SQLite file at path and migrates the schema.
func Open(path string, level gormlogger.LogLevel, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 applogger.NewGormLogger(logger, level),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	return New(db, logger)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Farmer{},
		&models.PriceBracket{},
		&models.DailyCollection{},
		&models.BillingCycle{},
		&models.FarmerBillingDetail{},
	); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// DB exposes the connection for components sharing the file (the journal).
func (s *Store) DB() *gorm.DB { return s.db }

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Transaction runs fn against a store bound to a single transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, logger: s.logger, now: s.now})
	})
}

// HasData reports whether any owner-scoped business data exists locally.
func (s *Store) HasData(ctx context.Context, ownerID string) (bool, error) {
	checks := []struct {
		model  any
		column string
	}{
		{&models.Farmer{}, "owner_id"},
		{&models.PriceBracket{}, "added_by"},
		{&models.DailyCollection{}, "owner_id"},
		{&models.BillingCycle{}, "owner_id"},
	}

	for _, check := range checks {
		var count int64
		if err := s.db.WithContext(ctx).Model(check.model).Where(check.column+" = ?", ownerID).Limit(1).Count(&count).Error; err != nil {
			return false, fmt.Errorf("count local rows: %w", err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// stamp applies the dirty-flag rule to a row about to be written.
func (s *Store) stamp(meta *models.SyncMeta, origin Origin) {
	now := s.now().UTC().Truncate(time.Millisecond)
	if meta.UID == "" {
		meta.UID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}

	switch origin {
	case OriginLocal:
		meta.Synced = false
		meta.Revision++
		meta.UpdatedAt = now
	case OriginRemote:
		meta.Synced = true
		if meta.UpdatedAt.IsZero() {
			meta.UpdatedAt = meta.CreatedAt
		}
	}
}
