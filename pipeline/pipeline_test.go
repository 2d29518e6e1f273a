package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rushteam/bookrec/core"
)

type appendNode struct {
	id  string
	err error
}

func (n *appendNode) Name() string { return "test.append." + n.id }
func (n *appendNode) Kind() Kind   { return KindRecall }
func (n *appendNode) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	if n.err != nil {
		return nil, n.err
	}
	return append(items, core.NewItem(n.id)), nil
}

func TestPipeline_Run(t *testing.T) {
	p := &Pipeline{Nodes: []Node{&appendNode{id: "b1"}, &appendNode{id: "b2"}}}
	items, err := p.Run(context.Background(), &core.RecommendContext{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(items) != 2 || items[0].ID != "b1" || items[1].ID != "b2" {
		t.Errorf("Run() = %v", items)
	}
}

func TestPipeline_RunStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	p := &Pipeline{Nodes: []Node{&appendNode{id: "b1"}, &appendNode{id: "b2", err: boom}, &appendNode{id: "b3"}}}
	items, err := p.Run(context.Background(), &core.RecommendContext{}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	if items != nil {
		t.Errorf("Run() returned partial result %v", items)
	}
}

func TestPipeline_Observe(t *testing.T) {
	var seen []string
	var outs []int
	p := &Pipeline{
		Nodes: []Node{&appendNode{id: "b1"}, &appendNode{id: "b2"}},
		Observe: func(node Node, _ time.Duration, out int, err error) {
			seen = append(seen, node.Name())
			outs = append(outs, out)
		},
	}
	if _, err := p.Run(context.Background(), &core.RecommendContext{}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 2 || seen[1] != "test.append.b2" || outs[1] != 2 {
		t.Errorf("observed %v %v", seen, outs)
	}
}

func TestPipeline_RunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Pipeline{Nodes: []Node{&appendNode{id: "b1"}}}
	if _, err := p.Run(ctx, &core.RecommendContext{}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
