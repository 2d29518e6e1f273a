package filter

import (
	"context"

	"github.com/rushteam/bookrec/core"
)

// Filter 判断候选是否需要移除（true 表示移除）。
type Filter interface {
	Name() string
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}

// Binder 是可选接口：每次请求先绑定一次外部数据（例如从存储读黑名单），
// 返回的请求级 Filter 再逐个判断候选，避免每个候选都访问一次存储。
type Binder interface {
	Bind(ctx context.Context, rctx *core.RecommendContext) (Filter, error)
}
