package recommender

import (
	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/filter"
	"github.com/rushteam/bookrec/modelstore"
	"github.com/rushteam/bookrec/pipeline"
	"github.com/rushteam/bookrec/recall"
)

// Config 是推荐服务的模型超参数
type Config struct {
	// KNeighbors 协同过滤近邻数
	KNeighbors int

	// StopWords TF-IDF 停用词；nil 表示内置英文停用词
	StopWords []string

	// DefaultK 请求未指定数量（k<=0）时返回的物品数
	DefaultK int

	// NeighborMean 见 recall.NeighborMeanAll / recall.NeighborMeanRaters
	NeighborMean string

	// Workers 训练时的并发数，<=0 表示不限制
	Workers int

	// BlockedItems 永不推荐的物品
	BlockedItems []string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	d := &core.DefaultRecallConfig{}
	return Config{
		KNeighbors:   d.DefaultKNeighbors(),
		StopWords:    d.DefaultStopWords(),
		DefaultK:     d.DefaultTopK(),
		NeighborMean: recall.NeighborMeanAll,
	}
}

// Option 配置 Recommender
type Option func(*Recommender)

// WithModelStore 设置模型持久化
func WithModelStore(ms *modelstore.ModelStore) Option {
	return func(r *Recommender) {
		r.models = ms
	}
}

// WithBlacklistStore 从存储读取运营维护的黑名单（JSON 字符串数组）
func WithBlacklistStore(s core.Store, key string) Option {
	return func(r *Recommender) {
		r.blacklistStore = filter.NewStoreAdapter(s)
		r.blacklistKey = key
	}
}

// WithObserver 为每次推荐的 Pipeline 设置 Node 观测回调
func WithObserver(obs pipeline.Observer) Option {
	return func(r *Recommender) {
		r.observe = obs
	}
}
