package store

import (
	"context"
	"sync"
	"time"

	"github.com/rushteam/bookrec/core"
)

// MemoryStore 是内存实现的 Store，用于测试/开发/单进程部署。
// 支持 TTL（过期时间）与 Watch，但进程重启后数据丢失。
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]*entry
	ttl      map[string]time.Time
	watchers map[string][]chan struct{}
	clean    *time.Ticker
	done     chan struct{}
	once     sync.Once
}

type entry struct {
	value []byte
	ttl   *time.Time
}

func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		data:     make(map[string]*entry),
		ttl:      make(map[string]time.Time),
		watchers: make(map[string][]chan struct{}),
		clean:    time.NewTicker(10 * time.Second),
		done:     make(chan struct{}),
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.ttl != nil && time.Now().After(*e.ttl) {
		return nil, ErrNotFound
	}
	return cloneBytes(e.value), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(key, value, expireAt(ttl))
	m.notify(key)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	delete(m.ttl, key)
	return nil
}

func (m *MemoryStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(keys))
	now := time.Now()
	for _, k := range keys {
		e, ok := m.data[k]
		if !ok {
			continue
		}
		if e.ttl != nil && now.After(*e.ttl) {
			continue
		}
		result[k] = cloneBytes(e.value)
	}
	return result, nil
}

func (m *MemoryStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expire := expireAt(ttl)
	for k, v := range kvs {
		m.put(k, v, expire)
	}
	for k := range kvs {
		m.notify(k)
	}
	return nil
}

// Watch 阻塞直到 ctx 结束或 store 关闭；key 每次被写入后调用 onChange。
// 连续多次写入可能合并为一次回调。
func (m *MemoryStore) Watch(ctx context.Context, key string, onChange func()) error {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	m.watchers[key] = append(m.watchers[key], ch)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.watchers[key]
		for i, c := range list {
			if c == ch {
				m.watchers[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case <-ch:
			onChange()
		}
	}
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() {
		m.clean.Stop()
		close(m.done)
	})
	return nil
}

// put 需持有写锁
func (m *MemoryStore) put(key string, value []byte, expire *time.Time) {
	m.data[key] = &entry{value: cloneBytes(value), ttl: expire}
	if expire != nil {
		m.ttl[key] = *expire
	} else {
		delete(m.ttl, key)
	}
}

// notify 需持有写锁
func (m *MemoryStore) notify(key string) {
	for _, ch := range m.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (m *MemoryStore) cleanup() {
	for {
		select {
		case <-m.done:
			return
		case <-m.clean.C:
			m.mu.Lock()
			now := time.Now()
			for k, expire := range m.ttl {
				if now.After(expire) {
					delete(m.data, k)
					delete(m.ttl, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

func expireAt(ttl []int) *time.Time {
	sec := ttlSeconds(ttl)
	if sec == 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(sec) * time.Second)
	return &t
}

var (
	_ core.Store   = (*MemoryStore)(nil)
	_ core.Watcher = (*MemoryStore)(nil)
)
