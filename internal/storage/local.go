package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/datatypes"
	_ "modernc.org/sqlite"

	"github.com/LJTian/InsightHub/internal/processor"
)

// 定宽 UTC 时间，字符串排序即时间排序
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

var localSchema = []string{
	`CREATE TABLE IF NOT EXISTS saved_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		headline TEXT NOT NULL,
		link TEXT UNIQUE NOT NULL,
		firm TEXT,
		region TEXT,
		topic TEXT,
		impact INTEGER,
		publication_date TEXT,
		saved_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_saved_items_saved_at ON saved_items (saved_at)`,
	`CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		domain TEXT UNIQUE NOT NULL,
		category TEXT,
		last_sync TEXT
	)`,
}

// LocalStore 单机 SQLite 实现（默认 research.db），SQL 由 squirrel 拼装
type LocalStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*LocalStore)(nil)

func NewLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite 只允许单写，连接池收敛到 1 保证唯一键冲突按顺序处理
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, stmt := range localSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return &LocalStore{db: db, now: time.Now}, nil
}

func (s *LocalStore) SaveArticle(ctx context.Context, a processor.Article) (bool, error) {
	item := newSavedItem(a, s.now().UTC())
	query, args, err := sq.Insert("saved_items").
		Options("OR IGNORE").
		Columns("headline", "link", "firm", "region", "topic", "impact", "publication_date", "saved_at").
		Values(item.Headline, item.Link, item.Firm, item.Region, item.Topic, item.Impact,
			a.Date.Format(processor.DateLayout), item.SavedAt.Format(sqliteTimeLayout)).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build save article: %w", err)
	}
	return s.execInserted(ctx, "save article", query, args)
}

func (s *LocalStore) RemoveSaved(ctx context.Context, link string) error {
	query, args, err := sq.Delete("saved_items").Where(sq.Eq{"link": link}).ToSql()
	if err != nil {
		return fmt.Errorf("build remove saved: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("remove saved: %w", err)
	}
	return nil
}

func (s *LocalStore) ListSaved(ctx context.Context) ([]SavedItem, error) {
	query, args, err := sq.Select("id", "headline", "link", "firm", "region", "topic", "impact", "publication_date", "saved_at").
		From("saved_items").
		OrderBy("saved_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list saved: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list saved: %w", err)
	}
	defer rows.Close()

	list := make([]SavedItem, 0)
	for rows.Next() {
		var (
			it                  SavedItem
			firm, region, topic sql.NullString
			impact              sql.NullInt64
			pubDate             sql.NullString
			savedAt             string
		)
		if err := rows.Scan(&it.ID, &it.Headline, &it.Link, &firm, &region, &topic, &impact, &pubDate, &savedAt); err != nil {
			return nil, fmt.Errorf("scan saved: %w", err)
		}
		it.Firm, it.Region, it.Topic = firm.String, region.String, topic.String
		it.Impact = int(impact.Int64)
		if d, err := time.Parse(processor.DateLayout, pubDate.String); err == nil {
			it.PublicationDate = datatypes.Date(d)
		}
		if t, err := time.Parse(sqliteTimeLayout, savedAt); err == nil {
			it.SavedAt = t
		}
		list = append(list, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list saved: %w", err)
	}
	return list, nil
}

func (s *LocalStore) SavedLinks(ctx context.Context) (map[string]bool, error) {
	query, args, err := sq.Select("link").From("saved_items").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build saved links: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("saved links: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("scan saved link: %w", err)
		}
		set[link] = true
	}
	return set, rows.Err()
}

func (s *LocalStore) AddSource(ctx context.Context, name, domain, category string) (bool, error) {
	rec, err := normalizeSource(name, domain, category)
	if err != nil {
		return false, err
	}
	query, args, err := sq.Insert("sources").
		Options("OR IGNORE").
		Columns("name", "domain", "category").
		Values(rec.Name, rec.Domain, rec.Category).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build add source: %w", err)
	}
	return s.execInserted(ctx, "add source", query, args)
}

func (s *LocalStore) ListSources(ctx context.Context) ([]SourceRecord, error) {
	query, args, err := sq.Select("id", "name", "domain", "category", "last_sync").
		From("sources").
		OrderBy("name ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sources: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	list := make([]SourceRecord, 0)
	for rows.Next() {
		var (
			rec      SourceRecord
			category sql.NullString
			lastSync sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Domain, &category, &lastSync); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		rec.Category = category.String
		if lastSync.Valid {
			if t, err := time.Parse(sqliteTimeLayout, lastSync.String); err == nil {
				rec.LastSync = &t
			}
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return list, nil
}

func (s *LocalStore) MarkSynced(ctx context.Context, at time.Time) error {
	query, args, err := sq.Update("sources").Set("last_sync", at.UTC().Format(sqliteTimeLayout)).ToSql()
	if err != nil {
		return fmt.Errorf("build mark synced: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

// execInserted 执行 INSERT OR IGNORE，受影响行数为 0 说明唯一键已存在
func (s *LocalStore) execInserted(ctx context.Context, op, query string, args []any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}
