package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/bookrec/core"
)

// Pipeline 按顺序执行 Nodes。任一 Node 失败或 ctx 结束则整条链失败，不返回部分结果。
type Pipeline struct {
	Nodes []Node

	// Observe 可选，用于按 Node 记录耗时
	Observe Observer
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("before %s: %w", node.Name(), err)
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if p.Observe != nil {
			p.Observe(node, time.Since(start), len(next), err)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		cur = next
	}
	return cur, nil
}
