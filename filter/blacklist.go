package filter

import (
	"context"

	"github.com/rushteam/bookrec/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉黑名单中的物品（下架/未审核的书）。
type BlacklistFilter struct {
	// ItemIDs 是内存中的黑名单物品 ID 列表（来自配置）
	ItemIDs []string

	// Store 用于从存储中读取黑名单（可选，运营侧维护）
	Store BlacklistStore

	// Key 是 Store 中的黑名单 key（可选）
	Key string
}

// BlacklistStore 是黑名单存储接口。
type BlacklistStore interface {
	// GetBlacklist 获取黑名单物品 ID 列表；key 不存在时返回空列表
	GetBlacklist(ctx context.Context, key string) ([]string, error)
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []string, storeAdapter *StoreAdapter, key string) *BlacklistFilter {
	var store BlacklistStore
	if storeAdapter != nil {
		store = storeAdapter
	}
	return &BlacklistFilter{
		ItemIDs: itemIDs,
		Store:   store,
		Key:     key,
	}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

// Blocked 合并配置与存储中的黑名单，返回去重后的 id 列表（配置在前）。
func (f *BlacklistFilter) Blocked(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{}, len(f.ItemIDs))
	out := make([]string, 0, len(f.ItemIDs))
	add := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(f.ItemIDs)
	if f.Store != nil && f.Key != "" {
		ids, err := f.Store.GetBlacklist(ctx, f.Key)
		if err != nil {
			return nil, err
		}
		add(ids)
	}
	return out, nil
}

// Bind 加载一次黑名单，返回本次请求使用的集合过滤器。
func (f *BlacklistFilter) Bind(ctx context.Context, _ *core.RecommendContext) (Filter, error) {
	ids, err := f.Blocked(ctx)
	if err != nil {
		return nil, err
	}
	set := make(idSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (f *BlacklistFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	bound, err := f.Bind(ctx, rctx)
	if err != nil {
		return false, err
	}
	return bound.ShouldFilter(ctx, rctx, item)
}

type idSet map[string]struct{}

func (s idSet) Name() string { return "filter.blacklist" }

func (s idSet) ShouldFilter(_ context.Context, _ *core.RecommendContext, item *core.Item) (bool, error) {
	if item == nil {
		return true, nil
	}
	_, ok := s[item.ID]
	return ok, nil
}
