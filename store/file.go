package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/rushteam/bookrec/core"
)

// FileStore 是基于本地目录的持久化 Store，每个 key 一个文件。
//
// 写入采用 write-then-rename：先写同目录临时文件并 fsync，再 rename 到目标名，
// 读者不会看到写了一半的文件。ttl 参数在此实现中不生效。
type FileStore struct {
	dir string
}

const tmpPrefix = ".tmp-"

// NewFileStore 创建（必要时新建目录）一个 FileStore。
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Name() string { return "file" }

// Dir 返回数据目录
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key))
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte, _ ...int) error {
	return s.writeAtomic(key, value)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, k := range keys {
		data, err := s.Get(ctx, k)
		if core.IsStoreNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[k] = data
	}
	return result, nil
}

// BatchSet 逐个 key 原子写入；整批不是一个事务，调用方需自行保证发布顺序（如 manifest 最后写）。
func (s *FileStore) BatchSet(ctx context.Context, kvs map[string][]byte, _ ...int) error {
	for k, v := range kvs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeAtomic(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) writeAtomic(key string, value []byte) (err error) {
	tmp, err := os.CreateTemp(s.dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: write %s: %w", key, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: sync %s: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("file store: close %s: %w", key, err)
	}
	if err = os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("file store: rename %s: %w", key, err)
	}
	return nil
}

// Watch 使用 fsnotify 监听数据目录，目标文件被创建/覆盖时调用 onChange。
func (s *FileStore) Watch(ctx context.Context, key string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file store: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("file store: watch %s: %w", s.dir, err)
	}

	target := filepath.Base(s.path(key))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, tmpPrefix) || name != target {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				onChange()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file store: watch: %w", werr)
		}
	}
}

func (s *FileStore) Close() error { return nil }

var (
	_ core.Store   = (*FileStore)(nil)
	_ core.Watcher = (*FileStore)(nil)
)
