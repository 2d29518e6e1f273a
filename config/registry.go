package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/bookrec/core"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/bookrec/config/builders"
// 以触发内置数据源（file / http / sqlite）与存储（memory / file / redis / badger）的 init 注册。

// SourceBuilder 根据 options 构建数据源
type SourceBuilder func(opts map[string]any) (core.DataSource, error)

// StoreBuilder 根据 options 构建存储后端
type StoreBuilder func(opts map[string]any) (core.Store, error)

var (
	registryMu     sync.RWMutex
	sourceBuilders = make(map[string]SourceBuilder)
	storeBuilders  = make(map[string]StoreBuilder)
)

// RegisterSource 注册一种数据源类型。
// 建议在各组件的 init 中调用，例如：func init() { config.RegisterSource("http", BuildHTTPSource) }
func RegisterSource(typeName string, builder SourceBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	sourceBuilders[typeName] = builder
}

// RegisterStore 注册一种存储后端
func RegisterStore(typeName string, builder StoreBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	storeBuilders[typeName] = builder
}

// SupportedSources 返回已注册的数据源类型（排序），用于错误提示与校验。
func SupportedSources() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedKeys(sourceBuilders)
}

// SupportedStores 返回已注册的存储后端（排序）
func SupportedStores() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedKeys(storeBuilders)
}

// BuildSource 按配置构建数据源
func BuildSource(cfg SourceConfig) (core.DataSource, error) {
	registryMu.RLock()
	b, ok := sourceBuilders[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported source type %q (supported: %v)", cfg.Type, SupportedSources())
	}
	return b(cfg.Options)
}

// BuildStore 按配置构建存储后端
func BuildStore(cfg StoreConfig) (core.Store, error) {
	registryMu.RLock()
	b, ok := storeBuilders[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported store backend %q (supported: %v)", cfg.Backend, SupportedStores())
	}
	return b(cfg.Options)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isRegistered[V any](m map[string]V, name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := m[name]
	return ok
}
