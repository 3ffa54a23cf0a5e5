package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LJTian/InsightHub/internal/processor"
)

// Store 基于 PostgreSQL 的实现，配置了 POSTGRES_DSN 时使用
type Store struct {
	DB  *gorm.DB
	now func() time.Time
}

var _ Repository = (*Store)(nil)

func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newStore(db)
}

func newStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&SavedItem{}, &SourceRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{DB: db, now: time.Now}, nil
}

// SaveArticle 以 link 作为幂等键；已存在时返回 false
func (s *Store) SaveArticle(ctx context.Context, a processor.Article) (bool, error) {
	item := newSavedItem(a, s.now().UTC())
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "link"}}, DoNothing: true}).
		Create(&item)
	if res.Error != nil {
		return false, fmt.Errorf("save article: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) RemoveSaved(ctx context.Context, link string) error {
	if err := s.DB.WithContext(ctx).Where("link = ?", link).Delete(&SavedItem{}).Error; err != nil {
		return fmt.Errorf("remove saved: %w", err)
	}
	return nil
}

func (s *Store) ListSaved(ctx context.Context) ([]SavedItem, error) {
	var list []SavedItem
	if err := s.DB.WithContext(ctx).Order("saved_at DESC").Order("id DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list saved: %w", err)
	}
	return list, nil
}

func (s *Store) SavedLinks(ctx context.Context) (map[string]bool, error) {
	var links []string
	if err := s.DB.WithContext(ctx).Model(&SavedItem{}).Pluck("link", &links).Error; err != nil {
		return nil, fmt.Errorf("saved links: %w", err)
	}
	set := make(map[string]bool, len(links))
	for _, l := range links {
		set[l] = true
	}
	return set, nil
}

// AddSource domain 已登记时返回 false
func (s *Store) AddSource(ctx context.Context, name, domain, category string) (bool, error) {
	rec, err := normalizeSource(name, domain, category)
	if err != nil {
		return false, err
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "domain"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("add source: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListSources(ctx context.Context) ([]SourceRecord, error) {
	var list []SourceRecord
	if err := s.DB.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return list, nil
}

// MarkSynced 刷新成功后更新所有登记数据源的 last_sync
func (s *Store) MarkSynced(ctx context.Context, at time.Time) error {
	err := s.DB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
		Model(&SourceRecord{}).Update("last_sync", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
