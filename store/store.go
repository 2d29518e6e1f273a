// Package store 提供 core.Store 的实现：memory / file / redis / badger。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var s core.Store = store.NewMemoryStore()
//	var w core.Watcher = store.NewMemoryStore()
package store

import "github.com/rushteam/bookrec/core"

// ErrNotFound 是 core.ErrStoreNotFound 的包内别名
var ErrNotFound = core.ErrStoreNotFound

func ttlSeconds(ttl []int) int {
	if len(ttl) > 0 && ttl[0] > 0 {
		return ttl[0]
	}
	return 0
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
