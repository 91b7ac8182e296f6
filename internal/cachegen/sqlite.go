package cachegen

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/moachat/pushkit/internal/errors"
)

// CacheEntry is one cached route body within a generation.
type CacheEntry struct {
	ID         uint   `gorm:"primaryKey"`
	Generation string `gorm:"size:255;not null;index:idx_gen_route,unique"`
	Route      string `gorm:"size:1024;not null;index:idx_gen_route,unique"`
	Body       []byte
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// SQLiteStorage persists cache generations in a sqlite database so an
// installed generation survives process restarts.
type SQLiteStorage struct {
	db *gorm.DB
}

// OpenSQLiteStorage opens (or creates) the database at path and migrates
// the schema.
func OpenSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&CacheEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache store: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Open(_ context.Context, name string) (Cache, error) {
	// Generations are implicit: a generation exists once it has entries,
	// so opening is just scoping.
	return &sqliteCache{db: s.db, generation: name}, nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).Where("generation = ?", name).Delete(&CacheEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete cache generation %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStorage) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&CacheEntry{}).
		Distinct("generation").
		Pluck("generation", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cache generations: %w", err)
	}
	return names, nil
}

type sqliteCache struct {
	db         *gorm.DB
	generation string
}

func (c *sqliteCache) Put(ctx context.Context, route string, body []byte) error {
	entry := CacheEntry{Generation: c.generation, Route: route, Body: body}
	err := c.db.WithContext(ctx).
		Where("generation = ? AND route = ?", c.generation, route).
		Delete(&CacheEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to replace cache entry %s: %w", route, err)
	}
	if err := c.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", route, err)
	}
	return nil
}

func (c *sqliteCache) Get(ctx context.Context, route string) ([]byte, bool, error) {
	var entry CacheEntry
	err := c.db.WithContext(ctx).
		Where("generation = ? AND route = ?", c.generation, route).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load cache entry %s: %w", route, err)
	}
	return entry.Body, true, nil
}
