package recall

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/pipeline"
	"github.com/rushteam/bookrec/pkg/utils"
)

// Fanout 是一个 Recall Node：并发执行多个召回源，并按 Sources 顺序合并结果。
//
// 合并规则：先拼接第 0 个源的结果，再拼接第 1 个……；Dedup 时同一 ID 保留第一次出现，
// 后续出现的 label 合并到保留项上。任一召回源失败则整个节点失败。
type Fanout struct {
	Sources       []Source
	Dedup         bool
	Timeout       time.Duration // 每个召回源的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fanout) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}

	results := make([][]*core.Item, len(n.Sources))
	eg, egCtx := errgroup.WithContext(ctx)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}

	for i, src := range n.Sources {
		s := src
		slot := i // 优先级（索引越小优先级越高）

		eg.Go(func() error {
			recallCtx := egCtx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(egCtx, n.Timeout)
				defer cancel()
			}

			items, err := s.Recall(recallCtx, rctx)
			if err != nil {
				return err
			}

			// 记录召回优先级 label，方便 explain / 观测
			for _, it := range items {
				it.PutLabel("recall_priority", utils.Label{Value: strconv.Itoa(slot), Source: "recall"})
			}
			results[slot] = items
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var all []*core.Item
	for _, items := range results {
		all = append(all, items...)
	}
	return n.mergeFirst(all), nil
}

// mergeFirst 按 ID 去重，保留第一个出现的。
func (n *Fanout) mergeFirst(all []*core.Item) []*core.Item {
	out := make([]*core.Item, 0, len(all))
	if !n.Dedup {
		for _, it := range all {
			if it != nil {
				out = append(out, it)
			}
		}
		return out
	}
	seen := make(map[string]*core.Item, len(all))
	for _, it := range all {
		if it == nil {
			continue
		}
		if old, ok := seen[it.ID]; ok {
			for k, v := range it.Labels {
				old.PutLabel(k, v)
			}
			continue
		}
		seen[it.ID] = it
		out = append(out, it)
	}
	return out
}
