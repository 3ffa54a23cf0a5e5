package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/LJTian/InsightHub/internal/processor"
)

// ErrInvalidSource 数据源登记时字段缺失或分类不合法
var ErrInvalidSource = errors.New("invalid source")

// Categories 看板表单允许的数据源分类
var Categories = []string{"Consulting", "Finance", "Tech", "Gov"}

// Repository 收藏与数据源登记的持久化；唯一键冲突以 false 返回而不是错误
type Repository interface {
	SaveArticle(ctx context.Context, a processor.Article) (bool, error)
	RemoveSaved(ctx context.Context, link string) error
	ListSaved(ctx context.Context) ([]SavedItem, error)
	SavedLinks(ctx context.Context) (map[string]bool, error)
	AddSource(ctx context.Context, name, domain, category string) (bool, error)
	ListSources(ctx context.Context) ([]SourceRecord, error)
	MarkSynced(ctx context.Context, at time.Time) error
	Close() error
}

// SavedItem 用户收藏的文章
type SavedItem struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Headline        string         `gorm:"size:512;not null" json:"headline"`
	Link            string         `gorm:"size:1024;uniqueIndex;not null" json:"link"`
	Firm            string         `gorm:"size:128" json:"firm"`
	Region          string         `gorm:"size:64;index" json:"region"`
	Topic           string         `gorm:"size:64;index" json:"topic"`
	Impact          int            `json:"impact"`
	PublicationDate datatypes.Date `json:"publication_date"`
	SavedAt         time.Time      `gorm:"index" json:"saved_at"`
}

func (SavedItem) TableName() string { return "saved_items" }

// SourceRecord 看板中手动登记的数据源，domain 唯一
type SourceRecord struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	Name     string     `gorm:"size:128;not null" json:"name"`
	Domain   string     `gorm:"size:256;uniqueIndex;not null" json:"domain"`
	Category string     `gorm:"size:32;index" json:"category"`
	LastSync *time.Time `json:"last_sync"`
}

func (SourceRecord) TableName() string { return "sources" }

func newSavedItem(a processor.Article, savedAt time.Time) SavedItem {
	return SavedItem{
		Headline:        strings.ToValidUTF8(a.Headline, "\uFFFD"),
		Link:            a.Link,
		Firm:            a.Firm,
		Region:          a.Region,
		Topic:           string(a.Topic),
		Impact:          a.Impact,
		PublicationDate: datatypes.Date(a.Date),
		SavedAt:         savedAt,
	}
}

// Article 还原为 processor.Article，方便导出
func (s SavedItem) Article() processor.Article {
	return processor.Article{
		Headline: s.Headline,
		Link:     s.Link,
		Firm:     s.Firm,
		Region:   s.Region,
		Topic:    processor.Topic(s.Topic),
		Impact:   s.Impact,
		Date:     time.Time(s.PublicationDate),
	}
}

// normalizeSource 校验并规范化登记参数；domain 统一小写
func normalizeSource(name, domain, category string) (SourceRecord, error) {
	rec := SourceRecord{
		Name:     strings.TrimSpace(name),
		Domain:   strings.ToLower(strings.TrimSpace(domain)),
		Category: strings.TrimSpace(category),
	}
	if rec.Name == "" || rec.Domain == "" {
		return SourceRecord{}, fmt.Errorf("%w: name and domain are required", ErrInvalidSource)
	}
	if !ValidCategory(rec.Category) {
		return SourceRecord{}, fmt.Errorf("%w: unknown category %q", ErrInvalidSource, rec.Category)
	}
	return rec, nil
}

func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}
