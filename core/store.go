package core

import "context"

// Store 是模型产物与运营数据（黑名单）使用的 KV 存储。
//
// 约定：
//   - 值是不透明字节，编码由调用方负责（modelstore 用 gob+gzip，黑名单用 JSON）
//   - 单个 key 的 Set 原子可见，读者要么看到旧值，要么看到完整的新值
//   - ttl 以秒为单位，省略或 <=0 表示不过期；不支持 TTL 的后端忽略该参数
//
// 实现见 store 包：memory / file / redis / badger。
type Store interface {
	Name() string

	// Get 在 key 不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl ...int) error
	Delete(ctx context.Context, key string) error

	// BatchGet 的结果中不包含不存在的 key
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)
	BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error

	Close() error
}

// Watcher 是可选扩展：训练进程与服务进程分离部署时，服务进程借此感知新模型。
type Watcher interface {
	// Watch 阻塞到 ctx 结束；key 每次被写入后调用 onChange，连续写入可能合并为一次回调
	Watch(ctx context.Context, key string, onChange func()) error
}

var ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

// IsStoreNotFound 只匹配存储层的 NOT_FOUND，不会把推荐查询的 NOT_FOUND 误判为缺 key
func IsStoreNotFound(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Module == ModuleStore && de.Code == ErrorCodeNotFound
}
