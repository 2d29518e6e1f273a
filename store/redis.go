package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/bookrec/core"
)

// changedSuffix 是写入通知频道后缀：Set/BatchSet 成功后向 key+changedSuffix 发布消息。
const changedSuffix = ":changed"

// RedisStore 是 Redis 实现的 Store。
// 生产环境常用，训练进程与服务进程可共享同一实例；Watch 基于 Pub/Sub。
type RedisStore struct {
	client *redis.Client
}

// RedisOptions 是 RedisStore 的连接参数
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient 使用已有客户端创建 RedisStore（测试或共享连接池时使用）
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	if err := r.client.Set(ctx, key, value, expiration(ttl)).Err(); err != nil {
		return err
	}
	return r.client.Publish(ctx, key+changedSuffix, "1").Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return make(map[string][]byte), nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(keys))
	for i, k := range keys {
		if vals[i] != nil {
			if s, ok := vals[i].(string); ok {
				result[k] = []byte(s)
			}
		}
	}
	return result, nil
}

// BatchSet 在一个 MULTI/EXEC 事务中写入所有 key，再发布变更通知。
func (r *RedisStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	if len(kvs) == 0 {
		return nil
	}
	exp := expiration(ttl)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range kvs {
			pipe.Set(ctx, k, v, exp)
		}
		return nil
	})
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	for k := range kvs {
		pipe.Publish(ctx, k+changedSuffix, "1")
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Watch 订阅 key 的变更频道，阻塞直到 ctx 结束。
func (r *RedisStore) Watch(ctx context.Context, key string, onChange func()) error {
	sub := r.client.Subscribe(ctx, key+changedSuffix)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			onChange()
		}
	}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func expiration(ttl []int) time.Duration {
	return time.Duration(ttlSeconds(ttl)) * time.Second
}

// 确保 RedisStore 实现了 core.Store 和 core.Watcher 接口
var (
	_ core.Store   = (*RedisStore)(nil)
	_ core.Watcher = (*RedisStore)(nil)
)
