package store

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rushteam/bookrec/core"
)

// testStoreContract 对所有后端执行同一组行为检查
func testStoreContract(t *testing.T, s core.Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
		t.Fatalf("Get(missing) error = %v, want not found", err)
	}

	if err := s.Set(ctx, "bookrec:manifest", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "bookrec:manifest")
	if err != nil || !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	// 覆盖写
	if err := s.Set(ctx, "bookrec:manifest", []byte("v2")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ = s.Get(ctx, "bookrec:manifest")
	if !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("Get() after overwrite = %q", got)
	}

	kvs := map[string][]byte{
		"bookrec:a:content":       []byte("c"),
		"bookrec:a:collaborative": []byte("f"),
	}
	if err := s.BatchSet(ctx, kvs); err != nil {
		t.Fatalf("BatchSet: %v", err)
	}
	res, err := s.BatchGet(ctx, []string{"bookrec:a:content", "bookrec:a:collaborative", "nope"})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if len(res) != 2 || string(res["bookrec:a:content"]) != "c" {
		t.Fatalf("BatchGet() = %v", res)
	}

	if err := s.Delete(ctx, "bookrec:a:content"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "bookrec:a:content"); !core.IsStoreNotFound(err) {
		t.Fatalf("Get after Delete error = %v", err)
	}
	// 删除不存在的 key 不报错
	if err := s.Delete(ctx, "bookrec:a:content"); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
}

func testWatch(t *testing.T, s core.Store, w core.Watcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fired := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, "bookrec:manifest", func() { fired <- struct{}{} })
	}()

	// 等待订阅生效后再写入，直到收到回调
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-fired:
			cancel()
			<-done
			return
		case <-tick.C:
			_ = s.Set(context.Background(), "bookrec:other", []byte("x"))
			_ = s.Set(context.Background(), "bookrec:manifest", []byte("x"))
		case <-ctx.Done():
			t.Fatal("watch callback not fired")
		}
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testStoreContract(t, s)
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	if err := s.Set(ctx, "k", []byte("v"), 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.mu.Lock()
	past := time.Now().Add(-time.Second)
	s.data["k"].ttl = &past
	s.mu.Unlock()
	if _, err := s.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("expired key error = %v", err)
	}
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	buf := []byte("abc")
	_ = s.Set(ctx, "k", buf)
	buf[0] = 'x'
	got, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value aliased caller buffer: %q", got)
	}
}

func TestMemoryStore_Watch(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testWatch(t, s, s)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	testStoreContract(t, s)
}

func TestFileStore_KeysWithSeparators(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	if err := s.Set(ctx, "a/b:c", []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "a/b:c")
	if err != nil || string(got) != "1" {
		t.Errorf("Get() = %q, %v", got, err)
	}
}

func TestFileStore_Watch(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	testWatch(t, s, s)
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadgerStore("")
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	defer s.Close()
	testStoreContract(t, s)
}

func TestBadgerStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	if err := s.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(context.Background(), "k")
	if err != nil || string(got) != "v" {
		t.Errorf("Get() after reopen = %q, %v", got, err)
	}
}
