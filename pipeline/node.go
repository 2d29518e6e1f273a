package pipeline

import (
	"context"
	"time"

	"github.com/rushteam/bookrec/core"
)

// Kind 是 Node 所处的阶段，用于按阶段打点
type Kind string

const (
	KindRecall      Kind = "recall"
	KindFilter      Kind = "filter"
	KindReRank      Kind = "rerank"
	KindPostProcess Kind = "postprocess"
)

// Node 接收上一阶段的候选并返回本阶段的候选。
// 召回节点忽略输入直接产生候选；其余节点只删除、截断或补全，不改变保留项的相对顺序。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}

// Observer 在每个 Node 执行后回调：耗时、输出数量与错误（成功时为 nil）。
type Observer func(node Node, elapsed time.Duration, out int, err error)
