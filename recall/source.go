package recall

import (
	"context"

	"github.com/rushteam/bookrec/core"
)

// Source 是一路召回（内容 / 协同过滤），由 Fanout 并发执行。
// 返回的候选按该路的排序给出，Fanout 不会重排。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

// SourceFunc 把函数适配为 Source
type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

func (s SourceFunc) Name() string { return s.SourceName }

func (s SourceFunc) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	return s.Fn(ctx, rctx)
}
