// Package builders 注册内置数据源与存储后端，入口处以空白导入触发：
//
//	import _ "github.com/rushteam/bookrec/config/builders"
package builders

import (
	"fmt"
	"time"

	"github.com/rushteam/bookrec/config"
	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/pkg/conv"
	"github.com/rushteam/bookrec/source"
	"github.com/rushteam/bookrec/store"
)

func init() {
	config.RegisterSource("file", BuildFileSource)
	config.RegisterSource("http", BuildHTTPSource)
	config.RegisterSource("sqlite", BuildSQLiteSource)

	config.RegisterStore("memory", BuildMemoryStore)
	config.RegisterStore("file", BuildFileStore)
	config.RegisterStore("redis", BuildRedisStore)
	config.RegisterStore("badger", BuildBadgerStore)
}

// BuildFileSource options: catalog_path, interactions_path
func BuildFileSource(cfg map[string]any) (core.DataSource, error) {
	catalog := conv.ConfigGet(cfg, "catalog_path", "")
	if catalog == "" {
		return nil, fmt.Errorf("file source: catalog_path is required")
	}
	return source.NewFileSource(catalog, conv.ConfigGet(cfg, "interactions_path", "")), nil
}

// BuildHTTPSource options: base_url, books_path, interactions_path, timeout
func BuildHTTPSource(cfg map[string]any) (core.DataSource, error) {
	src, err := source.NewHTTPSource(source.HTTPOptions{
		BaseURL:          conv.ConfigGet(cfg, "base_url", ""),
		BooksPath:        conv.ConfigGet(cfg, "books_path", ""),
		InteractionsPath: conv.ConfigGet(cfg, "interactions_path", ""),
		Timeout:          conv.ConfigGetDuration(cfg, "timeout", 30*time.Second),
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// BuildSQLiteSource options: dsn
func BuildSQLiteSource(cfg map[string]any) (core.DataSource, error) {
	dsn := conv.ConfigGet(cfg, "dsn", "")
	if dsn == "" {
		return nil, fmt.Errorf("sqlite source: dsn is required")
	}
	src, err := source.NewSQLiteSource(dsn)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func BuildMemoryStore(map[string]any) (core.Store, error) {
	return store.NewMemoryStore(), nil
}

// BuildFileStore options: path
func BuildFileStore(cfg map[string]any) (core.Store, error) {
	s, err := store.NewFileStore(conv.ConfigGet(cfg, "path", "./data/models"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// BuildRedisStore options: addr, password, db
func BuildRedisStore(cfg map[string]any) (core.Store, error) {
	s, err := store.NewRedisStore(store.RedisOptions{
		Addr:     conv.ConfigGet(cfg, "addr", "localhost:6379"),
		Password: conv.ConfigGet(cfg, "password", ""),
		DB:       int(conv.ConfigGetInt64(cfg, "db", 0)),
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// BuildBadgerStore options: path（为空时使用内存模式）
func BuildBadgerStore(cfg map[string]any) (core.Store, error) {
	s, err := store.NewBadgerStore(conv.ConfigGet(cfg, "path", ""))
	if err != nil {
		return nil, err
	}
	return s, nil
}
