package filter

import (
	"context"
	"strconv"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/pipeline"
	"github.com/rushteam/bookrec/pkg/utils"
)

// RemovedLabel 是请求级 Label，记录本次被过滤掉的候选数
const RemovedLabel = "filter_removed"

// FilterNode 依次应用 Filters，命中任一即移除；保留项顺序不变。
type FilterNode struct {
	Filters []Filter
}

func (n *FilterNode) Name() string        { return "filter.node" }
func (n *FilterNode) Kind() pipeline.Kind { return pipeline.KindFilter }

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}
	filters, err := n.bind(ctx, rctx)
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		drop, err := anyMatch(ctx, rctx, filters, item)
		if err != nil {
			return nil, err
		}
		if !drop {
			out = append(out, item)
		}
	}
	if removed := len(items) - len(out); removed > 0 && rctx != nil {
		rctx.PutLabel(RemovedLabel, utils.Label{Value: strconv.Itoa(removed), Source: "filter"})
	}
	return out, nil
}

func (n *FilterNode) bind(ctx context.Context, rctx *core.RecommendContext) ([]Filter, error) {
	filters := make([]Filter, len(n.Filters))
	for i, f := range n.Filters {
		b, ok := f.(Binder)
		if !ok {
			filters[i] = f
			continue
		}
		bound, err := b.Bind(ctx, rctx)
		if err != nil {
			return nil, err
		}
		filters[i] = bound
	}
	return filters, nil
}

func anyMatch(ctx context.Context, rctx *core.RecommendContext, filters []Filter, item *core.Item) (bool, error) {
	for _, f := range filters {
		hit, err := f.ShouldFilter(ctx, rctx, item)
		if err != nil || hit {
			return hit, err
		}
	}
	return false, nil
}
