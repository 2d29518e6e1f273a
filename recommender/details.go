package recommender

import (
	"context"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/pipeline"
	"github.com/rushteam/bookrec/recall"
)

// detailsNode 用已发布的目录快照补全标题、作者、封面；目录中没有的 id 原样保留。
type detailsNode struct {
	catalog *recall.ContentModel
}

func (n *detailsNode) Name() string        { return "postprocess.details" }
func (n *detailsNode) Kind() pipeline.Kind { return pipeline.KindPostProcess }

func (n *detailsNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.catalog == nil {
		return items, nil
	}
	for _, it := range items {
		if b, ok := n.catalog.Book(it.ID); ok {
			it.ApplyBook(b)
		}
	}
	return items, nil
}
