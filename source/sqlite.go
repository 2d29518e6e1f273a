package source

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rushteam/bookrec/core"
)

//go:embed schema.sql
var schema string

// SQLiteSource 从 SQLite 读取目录（books 表，仅 verified=1）与评分（interactions 表）。
// 评分按插入顺序返回，同一 (user, item) 的重复记录由模型按“后写覆盖”处理。
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource 打开数据库并初始化表结构
func NewSQLiteSource(dsn string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

func (s *SQLiteSource) Name() string { return "sqlite" }

func (s *SQLiteSource) FetchCatalog(ctx context.Context) ([]core.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, author, subjects, description, cover_url FROM books WHERE verified = 1 ORDER BY rowid")
	if err != nil {
		return nil, core.NewIOError(core.ModuleSource, "query books", err)
	}
	defer rows.Close()

	var books []core.Book
	for rows.Next() {
		var (
			b        core.Book
			subjects string
		)
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &subjects, &b.Description, &b.CoverURL); err != nil {
			return nil, core.NewIOError(core.ModuleSource, "scan book", err)
		}
		if subjects != "" {
			if err := json.Unmarshal([]byte(subjects), &b.Subjects); err != nil {
				return nil, core.InvalidInputError(core.ModuleSource, "book %q: bad subjects: %v", b.ID, err)
			}
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewIOError(core.ModuleSource, "iterate books", err)
	}
	return books, nil
}

func (s *SQLiteSource) FetchInteractions(ctx context.Context, since time.Time) ([]core.Interaction, error) {
	var sinceUnix int64
	if !since.IsZero() {
		sinceUnix = since.Unix()
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, item_id, rating FROM interactions WHERE created_at >= ? ORDER BY seq", sinceUnix)
	if err != nil {
		return nil, core.NewIOError(core.ModuleSource, "query interactions", err)
	}
	defer rows.Close()

	var out []core.Interaction
	for rows.Next() {
		var it core.Interaction
		if err := rows.Scan(&it.UserID, &it.ItemID, &it.Rating); err != nil {
			return nil, core.NewIOError(core.ModuleSource, "scan interaction", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewIOError(core.ModuleSource, "iterate interactions", err)
	}
	return out, nil
}

// UpsertBooks 写入或更新书目（导入工具与测试使用）
func (s *SQLiteSource) UpsertBooks(ctx context.Context, books []core.Book) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO books (id, title, author, subjects, description, cover_url)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, author = excluded.author,
			subjects = excluded.subjects, description = excluded.description, cover_url = excluded.cover_url`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range books {
		subjects := b.Subjects
		if subjects == nil {
			subjects = []string{}
		}
		raw, err := json.Marshal(subjects)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, b.ID, b.Title, b.Author, string(raw), b.Description, b.CoverURL); err != nil {
			return fmt.Errorf("insert book %s: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

// SetVerified 标记书目是否通过审核；未审核的书不进入目录
func (s *SQLiteSource) SetVerified(ctx context.Context, id string, verified bool) error {
	v := 0
	if verified {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, "UPDATE books SET verified = ? WHERE id = ?", v, id)
	return err
}

// InsertInteraction 追加一条评分
func (s *SQLiteSource) InsertInteraction(ctx context.Context, it core.Interaction, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO interactions (user_id, item_id, rating, created_at) VALUES (?, ?, ?, ?)",
		it.UserID, it.ItemID, it.Rating, at.Unix())
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

var _ core.DataSource = (*SQLiteSource)(nil)
