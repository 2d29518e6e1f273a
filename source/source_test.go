package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/bookrec/core"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestFileSource_JSON(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "books.json", `[
		{"id":"b1","title":"Dune","author":"Herbert","subjects":["scifi"],"cover_url":"http://c/1.jpg"},
		{"_id":"b2","title":"Dune Messiah","author":"Herbert","genre":["scifi"],"coverImage":{"url":"http://c/2.jpg"}}
	]`)
	interactions := writeFile(t, dir, "interactions.json", `{"interactions":[
		{"user_id":"u1","item_id":"b1","rating":5},
		{"user":"u2","bookId":"b2","rating":4}
	]}`)

	s := NewFileSource(catalog, interactions)
	books, err := s.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("len(books) = %d", len(books))
	}
	if books[1].ID != "b2" || books[1].Subjects[0] != "scifi" || books[1].CoverURL != "http://c/2.jpg" {
		t.Errorf("backend-shaped record not normalised: %+v", books[1])
	}

	its, err := s.FetchInteractions(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("FetchInteractions: %v", err)
	}
	want := []core.Interaction{{UserID: "u1", ItemID: "b1", Rating: 5}, {UserID: "u2", ItemID: "b2", Rating: 4}}
	if len(its) != 2 || its[0] != want[0] || its[1] != want[1] {
		t.Errorf("FetchInteractions() = %+v", its)
	}
}

func TestFileSource_YAMLAndWindow(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "books.yaml", `
books:
  - id: b1
    title: Dune
    author: Herbert
    subjects: [scifi]
`)
	interactions := writeFile(t, dir, "interactions.yml", `
- user_id: u1
  item_id: b1
  rating: 5
  created_at: 2026-01-01T00:00:00Z
- user_id: u2
  item_id: b1
  rating: 3
  created_at: 2026-03-01T00:00:00Z
- user_id: u3
  item_id: b1
  rating: 1
`)
	s := NewFileSource(catalog, interactions)
	books, err := s.FetchCatalog(context.Background())
	if err != nil || len(books) != 1 || books[0].Title != "Dune" {
		t.Fatalf("FetchCatalog() = %+v, %v", books, err)
	}

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	its, err := s.FetchInteractions(context.Background(), since)
	if err != nil {
		t.Fatalf("FetchInteractions: %v", err)
	}
	// u1 早于窗口被丢弃；u3 没有时间戳，保留
	if len(its) != 2 || its[0].UserID != "u2" || its[1].UserID != "u3" {
		t.Errorf("FetchInteractions() = %+v", its)
	}
}

func TestFileSource_Errors(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSource(filepath.Join(dir, "missing.json"), filepath.Join(dir, "missing-interactions.json"))
	if _, err := s.FetchCatalog(context.Background()); !core.IsIOError(err) {
		t.Errorf("missing catalog error = %v, want IO_ERROR", err)
	}
	its, err := s.FetchInteractions(context.Background(), time.Time{})
	if err != nil || len(its) != 0 {
		t.Errorf("missing interactions = %v, %v; want empty", its, err)
	}

	bad := writeFile(t, dir, "bad.json", `{"books": 3}`)
	s = NewFileSource(bad, "")
	if _, err := s.FetchCatalog(context.Background()); !core.IsInvalidInput(err) {
		t.Errorf("bad catalog error = %v, want INVALID_INPUT", err)
	}
}

func TestHTTPSource(t *testing.T) {
	var gotStart string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"_id":"b1","title":"Dune","author":"Herbert","genre":["scifi"]}]`))
	})
	mux.HandleFunc("/api/interactions", func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("startDate")
		_, _ = w.Write([]byte(`{"interactions":[{"user":"u1","bookId":"b1","rating":4.5}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s, err := NewHTTPSource(HTTPOptions{BaseURL: srv.URL + "/api/"})
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}
	defer s.Close()

	books, err := s.FetchCatalog(context.Background())
	if err != nil || len(books) != 1 || books[0].ID != "b1" || books[0].Subjects[0] != "scifi" {
		t.Fatalf("FetchCatalog() = %+v, %v", books, err)
	}

	since := time.Date(2026, 10, 12, 2, 0, 0, 0, time.UTC)
	its, err := s.FetchInteractions(context.Background(), since)
	if err != nil {
		t.Fatalf("FetchInteractions: %v", err)
	}
	if gotStart != "2026-10-12T02:00:00Z" {
		t.Errorf("startDate = %q", gotStart)
	}
	if len(its) != 1 || its[0] != (core.Interaction{UserID: "u1", ItemID: "b1", Rating: 4.5}) {
		t.Errorf("FetchInteractions() = %+v", its)
	}
}

func TestHTTPSource_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := NewHTTPSource(HTTPOptions{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.FetchCatalog(context.Background()); !core.IsIOError(err) {
			t.Fatalf("attempt %d error = %v, want IO_ERROR", i, err)
		}
	}
	if s.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", s.State())
	}
	_, err = s.FetchCatalog(context.Background())
	if !core.IsIOError(err) {
		t.Errorf("rejected call error = %v", err)
	}
	if n := calls.Load(); n != 5 {
		t.Errorf("backend calls = %d, want 5 (open breaker must not call upstream)", n)
	}
}

func TestNewHTTPSource_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPSource(HTTPOptions{}); !core.IsInvalidInput(err) {
		t.Errorf("error = %v, want INVALID_INPUT", err)
	}
}

func TestSQLiteSource(t *testing.T) {
	s, err := NewSQLiteSource(filepath.Join(t.TempDir(), "bookrec.db"))
	if err != nil {
		t.Fatalf("NewSQLiteSource: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	books := []core.Book{
		{ID: "b1", Title: "Dune", Author: "Herbert", Subjects: []string{"scifi"}},
		{ID: "b2", Title: "Emma", Author: "Austen"},
		{ID: "b3", Title: "Draft", Author: "Nobody"},
	}
	if err := s.UpsertBooks(ctx, books); err != nil {
		t.Fatalf("UpsertBooks: %v", err)
	}
	if err := s.SetVerified(ctx, "b3", false); err != nil {
		t.Fatalf("SetVerified: %v", err)
	}

	got, err := s.FetchCatalog(ctx)
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b1" || got[0].Subjects[0] != "scifi" || got[1].ID != "b2" {
		t.Errorf("FetchCatalog() = %+v", got)
	}

	now := time.Now()
	_ = s.InsertInteraction(ctx, core.Interaction{UserID: "u1", ItemID: "b1", Rating: 5}, now.Add(-30*24*time.Hour))
	_ = s.InsertInteraction(ctx, core.Interaction{UserID: "u1", ItemID: "b2", Rating: 4}, now.Add(-time.Hour))
	_ = s.InsertInteraction(ctx, core.Interaction{UserID: "u2", ItemID: "b1", Rating: 0}, now)

	its, err := s.FetchInteractions(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("FetchInteractions: %v", err)
	}
	if len(its) != 2 || its[0].ItemID != "b2" || its[1].UserID != "u2" {
		t.Errorf("FetchInteractions() = %+v", its)
	}

	all, err := s.FetchInteractions(ctx, time.Time{})
	if err != nil || len(all) != 3 {
		t.Errorf("FetchInteractions(zero) = %d, %v", len(all), err)
	}
}
