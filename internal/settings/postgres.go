package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Setting is one row of the settings table.
type Setting struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// PostgresRepository is used when several devices of the same participant
// share one settings database.
type PostgresRepository struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to settings database: %w", err)
	}
	return NewPostgresRepository(db)
}

// NewPostgresRepository migrates and wraps an existing connection.
func NewPostgresRepository(db *gorm.DB) (*PostgresRepository, error) {
	if err := db.AutoMigrate(&Setting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate settings: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Get(ctx context.Context, key string) (string, error) {
	var s Setting
	err := r.db.WithContext(ctx).First(&s, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

func (r *PostgresRepository) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Setting{Key: key, Value: value}).Error
}

func (r *PostgresRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&Setting{}, "key = ?", key).Error
}

func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Open picks the repository for driver ("sqlite" or "postgres").
func Open(driver, path, dsn string) (Repository, error) {
	switch driver {
	case "", "sqlite":
		return OpenSQLite(path)
	case "postgres":
		return OpenPostgres(dsn)
	}
	return nil, fmt.Errorf("settings: unknown driver %q", driver)
}
