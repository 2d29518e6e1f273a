package filter

import (
	"context"
	"testing"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/store"
)

func items(ids ...string) []*core.Item {
	out := make([]*core.Item, len(ids))
	for i, id := range ids {
		out[i] = core.NewItem(id)
	}
	return out
}

func TestFilterNode_Blacklist(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()

	adapter := NewStoreAdapter(s)
	if err := adapter.SetBlacklist(ctx, "bookrec:blocked", []string{"b4", "b4", ""}); err != nil {
		t.Fatalf("SetBlacklist: %v", err)
	}

	node := &FilterNode{Filters: []Filter{NewBlacklistFilter([]string{"b2"}, adapter, "bookrec:blocked")}}
	rctx := &core.RecommendContext{}
	out, err := node.Process(ctx, rctx, items("b1", "b2", "b3", "b4"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 2 || out[0].ID != "b1" || out[1].ID != "b3" {
		t.Errorf("Process() = %v, want [b1 b3]", out)
	}
	if lbl, ok := rctx.GetLabel(RemovedLabel); !ok || lbl.Value != "2" {
		t.Errorf("removed label = %+v", lbl)
	}
}

func TestBlacklistFilter_MissingKey(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	f := NewBlacklistFilter(nil, NewStoreAdapter(s), "bookrec:blocked")

	blocked, err := f.Blocked(context.Background())
	if err != nil || len(blocked) != 0 {
		t.Errorf("Blocked() = %v, %v; want empty", blocked, err)
	}
	drop, err := f.ShouldFilter(context.Background(), &core.RecommendContext{}, core.NewItem("b1"))
	if err != nil || drop {
		t.Errorf("ShouldFilter() = %v, %v", drop, err)
	}
}

func TestStoreAdapter_SetBlacklistSortsAndDedups(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()
	a := NewStoreAdapter(s)
	_ = a.SetBlacklist(ctx, "k", []string{"b3", "b1", "b3"})
	got, err := a.GetBlacklist(ctx, "k")
	if err != nil || len(got) != 2 || got[0] != "b1" || got[1] != "b3" {
		t.Errorf("GetBlacklist() = %v, %v", got, err)
	}
}
