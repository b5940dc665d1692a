package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormCache keeps payloads in a resource_cache table through gorm, on either
// SQLite or Postgres.
type GormCache struct {
	db *gorm.DB
}

func NewGormCache(driver, dsn string) (*GormCache, error) {
	var gormDialector gorm.Dialector
	switch driver {
	case "postgres":
		gormDialector = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = "fxratemanager.db"
		}
		gormDialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &GormCache{db: db}, nil
}

func (s *GormCache) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&CacheEntry{})
}

func (s *GormCache) IsCached(ctx context.Context, id string) bool {
	var n int64
	err := s.db.WithContext(ctx).Model(&CacheEntry{}).Where("resource_id = ?", id).Count(&n).Error
	return err == nil && n > 0
}

func (s *GormCache) Read(ctx context.Context, id string) ([]byte, error) {
	var entry CacheEntry
	result := s.db.WithContext(ctx).First(&entry, "resource_id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotCached
		}
		return nil, result.Error
	}
	return entry.Payload, nil
}

func (s *GormCache) Write(ctx context.Context, id string, data []byte) error {
	entry := CacheEntry{
		ResourceID: id,
		Payload:    data,
		UpdatedAt:  time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource_id"}},
		UpdateAll: true,
	}).Create(&entry).Error
}

func (s *GormCache) Clear(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&CacheEntry{}, "resource_id = ?", id).Error
}

func (s *GormCache) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormCache) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
