package recall

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/bookrec/core"
)

// 近邻均值的分母口径
const (
	// NeighborMeanAll 未评分的近邻按 0 计入分母（默认）
	NeighborMeanAll = "all"
	// NeighborMeanRaters 只除以实际评过分的近邻数
	NeighborMeanRaters = "raters"
)

// DefaultKNeighbors 是默认近邻数
const DefaultKNeighbors = 20

// CollaborativeModel 是基于用户的协同过滤模型（User-based CF）。
//
// 核心思想："兴趣相似的用户，喜欢相似的物品"
//
// 算法流程：
//  1. 评分 → 用户×物品稀疏矩阵（行、列均按 id 升序）
//  2. 用户向量之间的余弦距离，预计算每个用户的 K 个最近邻（不含自身）
//  3. 查询时：候选 = 近邻评过分而用户未评分的物品，分数 = 近邻评分均值
//
// 单元格存在即为"已评分"，显式的 0 分与未评分不同。
type CollaborativeModel struct {
	users        *IndexMap
	items        *IndexMap
	rowItems     [][]int     // 每行已评分物品的列号，升序
	rowRatings   [][]float64 // 与 rowItems 对齐
	neighbors    [][]int     // 每个用户的近邻行号，由近到远
	kNeighbors   int
	neighborMean string
	builtAt      time.Time
}

// CollaborativeOptions 是协同过滤模型的构建参数
type CollaborativeOptions struct {
	// KNeighbors 近邻数，<=0 时使用 DefaultKNeighbors；超过 用户数-1 时截断
	KNeighbors int

	// NeighborMean 为 NeighborMeanAll（默认）或 NeighborMeanRaters
	NeighborMean string

	// Workers 近邻搜索并发数，<=0 表示不限制
	Workers int
}

// BuildCollaborativeModel 从评分快照构建协同过滤模型。
// 同一 (user, item) 出现多次时以最后一条为准。
func BuildCollaborativeModel(ctx context.Context, interactions []core.Interaction, opts CollaborativeOptions) (*CollaborativeModel, error) {
	if len(interactions) == 0 {
		return nil, core.EmptyCorpusError(core.ModuleCollaborative)
	}
	mean, err := normalizeNeighborMean(opts.NeighborMean)
	if err != nil {
		return nil, err
	}

	ratings := make(map[string]map[string]float64)
	itemSet := make(map[string]struct{})
	for i, it := range interactions {
		if it.UserID == "" || it.ItemID == "" {
			return nil, core.InvalidInputError(core.ModuleCollaborative, "interaction at position %d has empty id", i)
		}
		if math.IsNaN(it.Rating) || math.IsInf(it.Rating, 0) {
			return nil, core.InvalidInputError(core.ModuleCollaborative, "interaction at position %d has non-finite rating", i)
		}
		row, ok := ratings[it.UserID]
		if !ok {
			row = make(map[string]float64)
			ratings[it.UserID] = row
		}
		row[it.ItemID] = it.Rating
		itemSet[it.ItemID] = struct{}{}
	}

	users, _ := NewIndexMap(sortedKeys(ratings))
	items, _ := NewIndexMap(sortedKeys(itemSet))

	rowItems := make([][]int, users.Len())
	rowRatings := make([][]float64, users.Len())
	for u := 0; u < users.Len(); u++ {
		row := ratings[users.ID(u)]
		cols := make([]int, 0, len(row))
		for itemID := range row {
			j, _ := items.Index(itemID)
			cols = append(cols, j)
		}
		sort.Ints(cols)
		vals := make([]float64, len(cols))
		for x, j := range cols {
			vals[x] = row[items.ID(j)]
		}
		rowItems[u] = cols
		rowRatings[u] = vals
	}

	m := &CollaborativeModel{
		users:        users,
		items:        items,
		rowItems:     rowItems,
		rowRatings:   rowRatings,
		kNeighbors:   effectiveK(opts.KNeighbors, users.Len()),
		neighborMean: mean,
	}
	if err := m.checkShape(); err != nil {
		return nil, err
	}

	m.neighbors, err = m.searchNeighbors(ctx, opts.Workers)
	if err != nil {
		return nil, err
	}
	m.builtAt = time.Now()
	return m, nil
}

func normalizeNeighborMean(v string) (string, error) {
	switch v {
	case "", NeighborMeanAll:
		return NeighborMeanAll, nil
	case NeighborMeanRaters:
		return NeighborMeanRaters, nil
	default:
		return "", core.InvalidInputError(core.ModuleCollaborative, "unknown neighbor mean %q", v)
	}
}

func effectiveK(k, users int) int {
	if k <= 0 {
		k = DefaultKNeighbors
	}
	if k > users-1 {
		k = users - 1
	}
	return k
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// checkShape 校验稀疏矩阵与索引的一致性
func (m *CollaborativeModel) checkShape() error {
	if len(m.rowItems) != m.users.Len() || len(m.rowRatings) != m.users.Len() {
		return core.DimensionMismatchError(core.ModuleCollaborative,
			"matrix has %d rows, %d users", len(m.rowItems), m.users.Len())
	}
	for u := range m.rowItems {
		if len(m.rowItems[u]) != len(m.rowRatings[u]) {
			return core.DimensionMismatchError(core.ModuleCollaborative,
				"row %d has %d columns and %d ratings", u, len(m.rowItems[u]), len(m.rowRatings[u]))
		}
		prev := -1
		for _, j := range m.rowItems[u] {
			if j <= prev || j >= m.items.Len() {
				return core.DimensionMismatchError(core.ModuleCollaborative,
					"row %d references column %d of %d", u, j, m.items.Len())
			}
			prev = j
		}
	}
	return nil
}

// searchNeighbors 并发计算每个用户的近邻：余弦距离升序，并列按行号升序。
func (m *CollaborativeModel) searchNeighbors(ctx context.Context, workers int) ([][]int, error) {
	n := m.users.Len()
	norms := make([]float64, n)
	for u := 0; u < n; u++ {
		var s float64
		for _, r := range m.rowRatings[u] {
			s += r * r
		}
		norms[u] = math.Sqrt(s)
	}

	out := make([][]int, n)
	if m.kNeighbors <= 0 {
		for u := range out {
			out[u] = []int{}
		}
		return out, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for u := 0; u < n; u++ {
		u := u
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			dense := make(map[int]float64, len(m.rowItems[u]))
			for x, j := range m.rowItems[u] {
				dense[j] = m.rowRatings[u][x]
			}
			cands := make([]scoredIdx, 0, n-1)
			for v := 0; v < n; v++ {
				if v == u {
					continue
				}
				var dot float64
				for x, j := range m.rowItems[v] {
					if r, ok := dense[j]; ok {
						dot += r * m.rowRatings[v][x]
					}
				}
				sim := 0.0
				if norms[u] > 0 && norms[v] > 0 {
					sim = dot / (norms[u] * norms[v])
				}
				// 距离 = 1 - sim，按相似度降序即按距离升序
				cands = append(cands, scoredIdx{idx: v, score: sim})
			}
			cands = topByScore(cands, m.kNeighbors)
			nb := make([]int, len(cands))
			for x, c := range cands {
				nb[x] = c.idx
			}
			out[u] = nb
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Recommend 为 userID 推荐 k 个未评分物品。
// 候选为至少一个近邻评过分、且用户未评分的物品；按分数降序，并列按物品 id 升序。
func (m *CollaborativeModel) Recommend(userID string, k int) ([]Scored, error) {
	u, ok := m.users.Index(userID)
	if !ok {
		return nil, core.NotFoundError(core.ModuleCollaborative, "user", userID)
	}
	if k <= 0 {
		return []Scored{}, nil
	}
	nb := m.neighbors[u]
	if len(nb) == 0 {
		return []Scored{}, nil
	}

	rated := make(map[int]struct{}, len(m.rowItems[u]))
	for _, j := range m.rowItems[u] {
		rated[j] = struct{}{}
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, v := range nb {
		for x, j := range m.rowItems[v] {
			if _, ok := rated[j]; ok {
				continue
			}
			sums[j] += m.rowRatings[v][x]
			counts[j]++
		}
	}

	cands := make([]scoredIdx, 0, len(sums))
	for j, sum := range sums {
		denom := float64(len(nb))
		if m.neighborMean == NeighborMeanRaters {
			denom = float64(counts[j])
		}
		cands = append(cands, scoredIdx{idx: j, score: sum / denom})
	}
	// 列按 id 升序分配，行号升序即 id 升序
	cands = topByScore(cands, k)

	out := make([]Scored, len(cands))
	for x, c := range cands {
		out[x] = Scored{ID: m.items.ID(c.idx), Score: c.score}
	}
	return out, nil
}

// Neighbors 返回用户的近邻 id，由近到远
func (m *CollaborativeModel) Neighbors(userID string) ([]string, error) {
	u, ok := m.users.Index(userID)
	if !ok {
		return nil, core.NotFoundError(core.ModuleCollaborative, "user", userID)
	}
	out := make([]string, len(m.neighbors[u]))
	for x, v := range m.neighbors[u] {
		out[x] = m.users.ID(v)
	}
	return out, nil
}

// Rating 返回用户对物品的评分；未评分返回 false
func (m *CollaborativeModel) Rating(userID, itemID string) (float64, bool) {
	u, ok := m.users.Index(userID)
	if !ok {
		return 0, false
	}
	j, ok := m.items.Index(itemID)
	if !ok {
		return 0, false
	}
	cols := m.rowItems[u]
	x := sort.SearchInts(cols, j)
	if x < len(cols) && cols[x] == j {
		return m.rowRatings[u][x], true
	}
	return 0, false
}

// HasUser 判断用户是否在模型中
func (m *CollaborativeModel) HasUser(userID string) bool {
	_, ok := m.users.Index(userID)
	return ok
}

// Users 返回用户数
func (m *CollaborativeModel) Users() int { return m.users.Len() }

// Items 返回被评分的物品数
func (m *CollaborativeModel) Items() int { return m.items.Len() }

// BuiltAt 返回构建时间
func (m *CollaborativeModel) BuiltAt() time.Time { return m.builtAt }

// CollaborativeState 是协同过滤模型的可序列化状态
type CollaborativeState struct {
	UserIDs      []string
	ItemIDs      []string
	RowItems     [][]int
	RowRatings   [][]float64
	Neighbors    [][]int
	KNeighbors   int
	NeighborMean string
	BuiltAt      time.Time
}

// State 导出模型状态（共享底层切片，调用方不得修改）
func (m *CollaborativeModel) State() *CollaborativeState {
	return &CollaborativeState{
		UserIDs:      m.users.IDs(),
		ItemIDs:      m.items.IDs(),
		RowItems:     m.rowItems,
		RowRatings:   m.rowRatings,
		Neighbors:    m.neighbors,
		KNeighbors:   m.kNeighbors,
		NeighborMean: m.neighborMean,
		BuiltAt:      m.builtAt,
	}
}

// Interactions 从矩阵还原评分快照（按用户、物品 id 升序）
func (m *CollaborativeModel) Interactions() []core.Interaction {
	var out []core.Interaction
	for u := range m.rowItems {
		for x, j := range m.rowItems[u] {
			out = append(out, core.Interaction{
				UserID: m.users.ID(u),
				ItemID: m.items.ID(j),
				Rating: m.rowRatings[u][x],
			})
		}
	}
	return out
}

// CollaborativeModelFromState 从状态重建模型，形状不一致时返回 DIMENSION_MISMATCH。
func CollaborativeModelFromState(st *CollaborativeState) (*CollaborativeModel, error) {
	if st == nil || len(st.UserIDs) == 0 {
		return nil, core.EmptyCorpusError(core.ModuleCollaborative)
	}
	users, ok := NewIndexMap(st.UserIDs)
	if !ok {
		return nil, core.DimensionMismatchError(core.ModuleCollaborative, "duplicate user id")
	}
	items, ok := NewIndexMap(st.ItemIDs)
	if !ok {
		return nil, core.DimensionMismatchError(core.ModuleCollaborative, "duplicate item id")
	}
	mean, err := normalizeNeighborMean(st.NeighborMean)
	if err != nil {
		return nil, err
	}
	m := &CollaborativeModel{
		users:        users,
		items:        items,
		rowItems:     st.RowItems,
		rowRatings:   st.RowRatings,
		neighbors:    st.Neighbors,
		kNeighbors:   st.KNeighbors,
		neighborMean: mean,
		builtAt:      st.BuiltAt,
	}
	if err := m.checkShape(); err != nil {
		return nil, err
	}
	if len(m.neighbors) != users.Len() {
		return nil, core.DimensionMismatchError(core.ModuleCollaborative,
			"neighbor lists %d, users %d", len(m.neighbors), users.Len())
	}
	for u, nb := range m.neighbors {
		for _, v := range nb {
			if v < 0 || v >= users.Len() || v == u {
				return nil, core.DimensionMismatchError(core.ModuleCollaborative,
					"user %d has invalid neighbor %d", u, v)
			}
		}
	}
	return m, nil
}

// UserCFRecall 是基于 CollaborativeModel 的召回源（u2i）
type UserCFRecall struct {
	Model *CollaborativeModel

	// TopK 返回的物品数；<=0 时使用 rctx.K
	TopK int
}

func (r *UserCFRecall) Name() string {
	return "recall.u2i"
}

// Recall 对未知用户返回空结果（冷启动由上层决定是否报错）
func (r *UserCFRecall) Recall(
	_ context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if r.Model == nil || rctx == nil || rctx.UserID == "" || !r.Model.HasUser(rctx.UserID) {
		return nil, nil
	}
	k := r.TopK
	if k <= 0 {
		k = rctx.K
	}
	scored, err := r.Model.Recommend(rctx.UserID, k)
	if err != nil {
		return nil, err
	}
	return toItems("collaborative", scored), nil
}
