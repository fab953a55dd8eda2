package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celerix-dev/key-switcher/pkg/schema"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// studentRow is the GORM model of the students table.
type studentRow struct {
	ID          uint       `gorm:"primaryKey"`
	User        string     `gorm:"column:user;not null"`
	PID         string     `gorm:"column:pid;uniqueIndex;not null"`
	Calls       int        `gorm:"column:calls;not null;default:0"`
	LastKeyTime *time.Time `gorm:"column:last_key_time"`
}

func (studentRow) TableName() string { return "students" }

func (r studentRow) toRecord() schema.StudentRecord {
	return schema.StudentRecord{
		User:        r.User,
		PID:         r.PID,
		Calls:       r.Calls,
		LastKeyTime: r.LastKeyTime,
	}
}

// SQLStore implements Store on any GORM dialect (PostgreSQL in production, SQLite embedded).
type SQLStore struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewSQLStore opens a store over dialector and migrates the students table.
func NewSQLStore(dialector gorm.Dialector, log zerolog.Logger) (*SQLStore, error) {
	db, err := gorm.Open(dialector, gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&studentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate students table: %w", err)
	}
	return &SQLStore{db: db, log: log}, nil
}

// NewSQLStoreFromDB wraps an already configured connection without migrating.
func NewSQLStoreFromDB(db *gorm.DB, log zerolog.Logger) *SQLStore {
	return &SQLStore{db: db, log: log}
}

func gormConfig(log zerolog.Logger) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: logger.New(gormWriter{log: log}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// gormWriter routes GORM's printf-style logger into zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warn().Str("component", "gorm").Msgf(format, args...)
}

func (s *SQLStore) Get(ctx context.Context, pid string) (schema.StudentRecord, error) {
	var row studentRow
	result := s.db.WithContext(ctx).Where("pid = ?", pid).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return schema.StudentRecord{}, ErrUserNotFound
		}
		s.log.Error().Err(result.Error).Str("pid", pid).Msg("student lookup failed")
		return schema.StudentRecord{}, fmt.Errorf("failed to get student: %w", result.Error)
	}
	return row.toRecord(), nil
}

func (s *SQLStore) Insert(ctx context.Context, rec schema.StudentRecord) error {
	row := studentRow{
		User:        rec.User,
		PID:         rec.PID,
		Calls:       rec.Calls,
		LastKeyTime: rec.LastKeyTime,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicatePID
		}
		return fmt.Errorf("failed to insert student: %w", err)
	}
	return nil
}

func (s *SQLStore) RecordUsage(ctx context.Context, pid string, keyTime time.Time) (schema.StudentRecord, error) {
	var row studentRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&studentRow{}).
			Where("pid = ?", pid).
			Updates(map[string]any{
				"calls":         gorm.Expr("calls + ?", 1),
				"last_key_time": keyTime,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return tx.Where("pid = ?", pid).First(&row).Error
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return schema.StudentRecord{}, err
		}
		return schema.StudentRecord{}, fmt.Errorf("failed to record usage: %w", err)
	}
	return row.toRecord(), nil
}

func (s *SQLStore) List(ctx context.Context) ([]schema.StudentRecord, error) {
	var rows []studentRow
	if err := s.db.WithContext(ctx).Order("pid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	out := make([]schema.StudentRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
