// Package recommender 提供混合推荐服务对象：内容召回优先、协同过滤补充，去重后截断。
//
// 模型以不可变快照的形式发布：训练在新对象上完成后通过原子指针替换，
// 查询只做一次指针读取，不会看到构建到一半的模型。
package recommender

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/filter"
	"github.com/rushteam/bookrec/modelstore"
	"github.com/rushteam/bookrec/pipeline"
	"github.com/rushteam/bookrec/recall"
	"github.com/rushteam/bookrec/rerank"
)

// Recommendation 是返回给调用方的一条推荐
type Recommendation struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	CoverURL string `json:"cover_url,omitempty"`
}

// Status 描述当前发布的模型
type Status struct {
	ContentReady         bool      `json:"content_ready"`
	Items                int       `json:"items"`
	ContentBuiltAt       time.Time `json:"content_built_at"`
	CollaborativeReady   bool      `json:"collaborative_ready"`
	Users                int       `json:"users"`
	RatedItems           int       `json:"rated_items"`
	CollaborativeBuiltAt time.Time `json:"collaborative_built_at"`
}

// Recommender 是混合推荐服务对象，进程启动时构建一次并注入调用方。
type Recommender struct {
	cfg Config

	content atomic.Pointer[recall.ContentModel]
	collab  atomic.Pointer[recall.CollaborativeModel]

	// 每类模型同一时刻只允许一个训练
	contentMu sync.Mutex
	collabMu  sync.Mutex

	models         *modelstore.ModelStore
	blacklistStore *filter.StoreAdapter
	blacklistKey   string
	observe        pipeline.Observer
}

// New 创建 Recommender；未设置的配置项取默认值。
func New(cfg Config, opts ...Option) *Recommender {
	def := DefaultConfig()
	if cfg.KNeighbors <= 0 {
		cfg.KNeighbors = def.KNeighbors
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = def.DefaultK
	}
	if cfg.NeighborMean == "" {
		cfg.NeighborMean = def.NeighborMean
	}
	r := &Recommender{cfg: cfg}
	for _, o := range opts {
		o(r)
	}
	return r
}

// TrainContent 用目录快照重建内容模型并发布。失败时保留原模型。
func (r *Recommender) TrainContent(ctx context.Context, books []core.Book) error {
	r.contentMu.Lock()
	defer r.contentMu.Unlock()

	m, err := recall.BuildContentModel(ctx, books, recall.ContentOptions{
		StopWords: r.cfg.StopWords,
		Workers:   r.cfg.Workers,
	})
	if err != nil {
		return err
	}
	r.content.Store(m)
	return nil
}

// TrainCollaborative 用评分快照重建协同过滤模型并发布。失败时保留原模型。
func (r *Recommender) TrainCollaborative(ctx context.Context, interactions []core.Interaction) error {
	r.collabMu.Lock()
	defer r.collabMu.Unlock()

	m, err := recall.BuildCollaborativeModel(ctx, interactions, recall.CollaborativeOptions{
		KNeighbors:   r.cfg.KNeighbors,
		NeighborMean: r.cfg.NeighborMean,
		Workers:      r.cfg.Workers,
	})
	if err != nil {
		return err
	}
	r.collab.Store(m)
	return nil
}

// Recommend 返回混合推荐结果。
//
//   - itemID 非空：内容推荐在前，已知用户的协同过滤结果在后
//   - itemID 为空：仅协同过滤，未知用户返回 NOT_FOUND
//   - 未知用户但给了 itemID：仅内容推荐（冷启动）
//   - 给了 itemID 但内容模型未发布：已知用户仅返回协同过滤结果，否则 NOT_READY
//   - k<=0 时使用 DefaultK
func (r *Recommender) Recommend(ctx context.Context, userID, itemID string, k int) ([]Recommendation, error) {
	content := r.content.Load()
	collab := r.collab.Load()

	if content == nil && collab == nil {
		return nil, core.NewDomainError(core.ModuleRecommender, core.ErrorCodeNotReady, "recommender: no model published")
	}
	if k <= 0 {
		k = r.cfg.DefaultK
	}

	knownUser := collab != nil && userID != "" && collab.HasUser(userID)
	if itemID == "" {
		if collab == nil {
			return nil, core.NewDomainError(core.ModuleRecommender, core.ErrorCodeNotReady, "recommender: collaborative model not ready")
		}
		if !knownUser {
			return nil, core.NotFoundError(core.ModuleRecommender, "user", userID)
		}
	} else if content == nil {
		// 内容模型未就绪时，已知用户仍返回协同过滤结果
		if !knownUser {
			return nil, core.NewDomainError(core.ModuleRecommender, core.ErrorCodeNotReady, "recommender: content model not ready")
		}
	} else if !content.Has(itemID) {
		return nil, core.NotFoundError(core.ModuleRecommender, "item", itemID)
	}

	blocked, err := r.Blocked(ctx)
	if err != nil {
		return nil, err
	}
	// 多取被屏蔽的数量，过滤后仍能凑满 k
	limit := k + len(blocked)

	var sources []recall.Source
	if itemID != "" && content != nil {
		sources = append(sources, &recall.ContentRecall{Model: content, TopK: limit})
	}
	if knownUser {
		sources = append(sources, &recall.UserCFRecall{Model: collab, TopK: limit})
	}

	p := &pipeline.Pipeline{
		Nodes: []pipeline.Node{
			&recall.Fanout{Sources: sources, Dedup: true},
			&filter.FilterNode{Filters: []filter.Filter{&filter.BlacklistFilter{ItemIDs: blocked}}},
			&rerank.TopNNode{N: k},
			&detailsNode{catalog: content},
		},
		Observe: r.observe,
	}

	rctx := &core.RecommendContext{UserID: userID, ItemID: itemID, K: k}
	items, err := p.Run(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(items))
	for _, it := range items {
		out = append(out, Recommendation{
			ID:       it.ID,
			Title:    it.Title,
			Author:   it.Author,
			CoverURL: it.CoverURL,
		})
	}
	return out, nil
}

// Blocked 返回配置与存储中合并后的黑名单
func (r *Recommender) Blocked(ctx context.Context) ([]string, error) {
	f := &filter.BlacklistFilter{ItemIDs: r.cfg.BlockedItems, Key: r.blacklistKey}
	if r.blacklistStore != nil {
		f.Store = r.blacklistStore
	}
	return f.Blocked(ctx)
}

// SetBlocked 覆盖存储中的黑名单；未配置黑名单存储时返回 NOT_SUPPORTED。
func (r *Recommender) SetBlocked(ctx context.Context, ids []string) error {
	if r.blacklistStore == nil || r.blacklistKey == "" {
		return core.NewDomainError(core.ModuleRecommender, core.ErrorCodeNotSupported, "recommender: blacklist store not configured")
	}
	return r.blacklistStore.SetBlacklist(ctx, r.blacklistKey, ids)
}

// Save 持久化当前发布的模型。
func (r *Recommender) Save(ctx context.Context) (*modelstore.Version, error) {
	if r.models == nil {
		return nil, core.NewDomainError(core.ModuleRecommender, core.ErrorCodeNotSupported, "recommender: model store not configured")
	}
	content := r.content.Load()
	collab := r.collab.Load()
	if content == nil && collab == nil {
		return nil, core.NewDomainError(core.ModuleRecommender, core.ErrorCodeNotReady, "recommender: no model published")
	}
	return r.models.Save(ctx, content, collab)
}

// Load 从模型存储恢复。已发布模型只会被构建时间更晚的模型替换。
// 返回实际替换的模型数。
func (r *Recommender) Load(ctx context.Context) (int, error) {
	if r.models == nil {
		return 0, core.NewDomainError(core.ModuleRecommender, core.ErrorCodeNotSupported, "recommender: model store not configured")
	}
	loaded, err := r.models.Load(ctx)
	if err != nil {
		return 0, err
	}

	replaced := 0
	if loaded.Content != nil && publishIfNewer(&r.content, loaded.Content) {
		replaced++
	}
	if loaded.Collaborative != nil && publishIfNewer(&r.collab, loaded.Collaborative) {
		replaced++
	}
	return replaced, nil
}

type builtModel interface {
	BuiltAt() time.Time
}

func publishIfNewer[T any, PT interface {
	*T
	builtModel
}](ptr *atomic.Pointer[T], next PT) bool {
	for {
		cur := ptr.Load()
		if cur != nil && !next.BuiltAt().After(PT(cur).BuiltAt()) {
			return false
		}
		if ptr.CompareAndSwap(cur, (*T)(next)) {
			return true
		}
	}
}

// Status 返回当前发布模型的概况
func (r *Recommender) Status() Status {
	var s Status
	if m := r.content.Load(); m != nil {
		s.ContentReady = true
		s.Items = m.Len()
		s.ContentBuiltAt = m.BuiltAt()
	}
	if m := r.collab.Load(); m != nil {
		s.CollaborativeReady = true
		s.Users = m.Users()
		s.RatedItems = m.Items()
		s.CollaborativeBuiltAt = m.BuiltAt()
	}
	return s
}

// ModelStore 返回模型存储（可能为 nil）
func (r *Recommender) ModelStore() *modelstore.ModelStore {
	return r.models
}

// Close 释放模型存储
func (r *Recommender) Close() error {
	if r.models == nil {
		return nil
	}
	return r.models.Close()
}
