// Package source 提供训练数据的外部协作方：本地快照文件、后端 HTTP API、SQLite。
package source

import (
	"time"

	"github.com/rushteam/bookrec/core"
)

// bookRecord 兼容两种书目格式：本服务的 {id, subjects, cover_url}
// 与后端文档库导出的 {_id, genre, coverImage.url}。
type bookRecord struct {
	ID          string   `json:"id" yaml:"id"`
	MongoID     string   `json:"_id" yaml:"_id"`
	Title       string   `json:"title" yaml:"title"`
	Author      string   `json:"author" yaml:"author"`
	Subjects    []string `json:"subjects" yaml:"subjects"`
	Genre       []string `json:"genre" yaml:"genre"`
	Description string   `json:"description" yaml:"description"`
	CoverURL    string   `json:"cover_url" yaml:"cover_url"`
	CoverImage  struct {
		URL string `json:"url" yaml:"url"`
	} `json:"coverImage" yaml:"coverImage"`
}

func (r bookRecord) toBook() core.Book {
	b := core.Book{
		ID:          r.ID,
		Title:       r.Title,
		Author:      r.Author,
		Subjects:    r.Subjects,
		Description: r.Description,
		CoverURL:    r.CoverURL,
	}
	if b.ID == "" {
		b.ID = r.MongoID
	}
	if len(b.Subjects) == 0 {
		b.Subjects = r.Genre
	}
	if b.CoverURL == "" {
		b.CoverURL = r.CoverImage.URL
	}
	return b
}

// interactionRecord 兼容 {user_id, item_id} 与 {user, bookId} 两种字段名。
type interactionRecord struct {
	UserID       string     `json:"user_id" yaml:"user_id"`
	User         string     `json:"user" yaml:"user"`
	ItemID       string     `json:"item_id" yaml:"item_id"`
	BookID       string     `json:"bookId" yaml:"bookId"`
	Rating       float64    `json:"rating" yaml:"rating"`
	CreatedAt    *time.Time `json:"created_at" yaml:"created_at"`
	CreatedAtAlt *time.Time `json:"createdAt" yaml:"createdAt"`
}

func (r interactionRecord) toInteraction() core.Interaction {
	it := core.Interaction{UserID: r.UserID, ItemID: r.ItemID, Rating: r.Rating}
	if it.UserID == "" {
		it.UserID = r.User
	}
	if it.ItemID == "" {
		it.ItemID = r.BookID
	}
	return it
}

func (r interactionRecord) createdAt() (time.Time, bool) {
	if r.CreatedAt != nil {
		return *r.CreatedAt, true
	}
	if r.CreatedAtAlt != nil {
		return *r.CreatedAtAlt, true
	}
	return time.Time{}, false
}

func toBooks(records []bookRecord) []core.Book {
	out := make([]core.Book, len(records))
	for i, r := range records {
		out[i] = r.toBook()
	}
	return out
}

// toInteractions 转换评分记录；since 非零时丢弃早于 since 的带时间戳记录。
func toInteractions(records []interactionRecord, since time.Time) []core.Interaction {
	out := make([]core.Interaction, 0, len(records))
	for _, r := range records {
		if ts, ok := r.createdAt(); ok && !since.IsZero() && ts.Before(since) {
			continue
		}
		out = append(out, r.toInteraction())
	}
	return out
}
