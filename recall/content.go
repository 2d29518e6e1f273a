package recall

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/bookrec/core"
)

// ContentModel 是基于文本相似度的内容模型（Content-Based）。
//
// 核心思想："与参考物品文本相近的物品，用户也可能喜欢"
//
// 算法流程：
//  1. 物品 → combined_text（title / author / subjects / description）
//  2. TF-IDF 向量化（停用词可配置）
//  3. 预计算 N×N 余弦相似度矩阵（对称，对角线为 1）
//  4. 查询时取参考物品所在行，排除自身后排序
//
// 构建完成后只读，可被任意多个查询并发读取。
type ContentModel struct {
	books      []core.Book
	index      *IndexMap
	vectorizer *TFIDF
	sim        []float64 // 行主序 N×N
	builtAt    time.Time
}

// ContentOptions 是内容模型的构建参数
type ContentOptions struct {
	// StopWords 为 nil 时使用 EnglishStopWords
	StopWords []string

	// Workers 计算相似度行的并发数，<=0 表示不限制
	Workers int
}

// BuildContentModel 从目录快照构建内容模型。
// 空目录返回 EMPTY_CORPUS；id 为空或重复返回 INVALID_INPUT。
func BuildContentModel(ctx context.Context, books []core.Book, opts ContentOptions) (*ContentModel, error) {
	if len(books) == 0 {
		return nil, core.EmptyCorpusError(core.ModuleContent)
	}

	ids := make([]string, len(books))
	docs := make([]string, len(books))
	for i, b := range books {
		if b.ID == "" {
			return nil, core.InvalidInputError(core.ModuleContent, "book at position %d has empty id", i)
		}
		ids[i] = b.ID
		docs[i] = b.CombinedText()
	}
	index, ok := NewIndexMap(ids)
	if !ok {
		return nil, core.InvalidInputError(core.ModuleContent, "duplicate book id in catalog")
	}

	vectorizer := NewTFIDF(opts.StopWords)
	vectors := vectorizer.FitTransform(docs)

	sim, err := similarityMatrix(ctx, vectors, opts.Workers)
	if err != nil {
		return nil, err
	}

	return &ContentModel{
		books:      append([]core.Book(nil), books...),
		index:      index,
		vectorizer: vectorizer,
		sim:        sim,
		builtAt:    time.Now(),
	}, nil
}

// similarityMatrix 并发计算上三角，再镜像到下三角，保证严格对称。
func similarityMatrix(ctx context.Context, vectors []SparseVector, workers int) ([]float64, error) {
	n := len(vectors)
	sim := make([]float64, n*n)

	eg, egCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			row := sim[i*n : (i+1)*n]
			row[i] = 1.0
			for j := i + 1; j < n; j++ {
				s := vectors[i].Dot(vectors[j])
				if s < 0 {
					s = 0
				}
				if s > 1 {
					s = 1
				}
				row[j] = s
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim[j*n+i] = sim[i*n+j]
		}
	}
	return sim, nil
}

// Recommend 返回与 itemID 最相似的 k 个物品（不含自身）。
// 按相似度降序，并列时按目录原始顺序；目录不足 k+1 本时返回更少。
func (m *ContentModel) Recommend(itemID string, k int) ([]Scored, error) {
	i, ok := m.index.Index(itemID)
	if !ok {
		return nil, core.NotFoundError(core.ModuleContent, "item", itemID)
	}
	if k <= 0 {
		return []Scored{}, nil
	}

	n := m.index.Len()
	row := m.sim[i*n : (i+1)*n]
	cands := make([]scoredIdx, 0, n-1)
	for j, s := range row {
		if j == i {
			continue
		}
		cands = append(cands, scoredIdx{idx: j, score: s})
	}
	cands = topByScore(cands, k)

	out := make([]Scored, len(cands))
	for x, c := range cands {
		out[x] = Scored{ID: m.index.ID(c.idx), Score: c.score}
	}
	return out, nil
}

// Similarity 返回两个物品的相似度
func (m *ContentModel) Similarity(a, b string) (float64, error) {
	i, ok := m.index.Index(a)
	if !ok {
		return 0, core.NotFoundError(core.ModuleContent, "item", a)
	}
	j, ok := m.index.Index(b)
	if !ok {
		return 0, core.NotFoundError(core.ModuleContent, "item", b)
	}
	return m.sim[i*m.index.Len()+j], nil
}

// Book 返回目录中的书
func (m *ContentModel) Book(id string) (core.Book, bool) {
	i, ok := m.index.Index(id)
	if !ok {
		return core.Book{}, false
	}
	return m.books[i], true
}

// Has 判断物品是否在模型中
func (m *ContentModel) Has(id string) bool {
	_, ok := m.index.Index(id)
	return ok
}

// Len 返回物品数
func (m *ContentModel) Len() int { return m.index.Len() }

// BuiltAt 返回构建时间
func (m *ContentModel) BuiltAt() time.Time { return m.builtAt }

// Vocabulary 返回词表大小
func (m *ContentModel) Vocabulary() int { return len(m.vectorizer.Vocabulary) }

// ContentState 是内容模型的可序列化状态
type ContentState struct {
	Books      []core.Book
	StopWords  []string
	Vocabulary []string
	IDF        []float64
	Similarity []float64
	BuiltAt    time.Time
}

// State 导出模型状态（共享底层切片，调用方不得修改）
func (m *ContentModel) State() *ContentState {
	return &ContentState{
		Books:      m.books,
		StopWords:  m.vectorizer.StopWords,
		Vocabulary: m.vectorizer.Vocabulary,
		IDF:        m.vectorizer.IDF,
		Similarity: m.sim,
		BuiltAt:    m.builtAt,
	}
}

// ContentModelFromState 从状态重建模型，形状不一致时返回 DIMENSION_MISMATCH。
func ContentModelFromState(st *ContentState) (*ContentModel, error) {
	if st == nil || len(st.Books) == 0 {
		return nil, core.EmptyCorpusError(core.ModuleContent)
	}
	n := len(st.Books)
	if len(st.Similarity) != n*n {
		return nil, core.DimensionMismatchError(core.ModuleContent,
			"similarity has %d cells, want %d×%d", len(st.Similarity), n, n)
	}
	if len(st.IDF) != len(st.Vocabulary) {
		return nil, core.DimensionMismatchError(core.ModuleContent,
			"idf has %d entries, vocabulary %d", len(st.IDF), len(st.Vocabulary))
	}

	ids := make([]string, n)
	for i, b := range st.Books {
		ids[i] = b.ID
	}
	index, ok := NewIndexMap(ids)
	if !ok {
		return nil, core.DimensionMismatchError(core.ModuleContent, "duplicate book id in persisted catalog")
	}

	stop := st.StopWords
	if stop == nil {
		stop = []string{}
	}
	v := &TFIDF{StopWords: stop, Vocabulary: st.Vocabulary, IDF: st.IDF}
	v.init()

	return &ContentModel{
		books:      st.Books,
		index:      index,
		vectorizer: v,
		sim:        st.Similarity,
		builtAt:    st.BuiltAt,
	}, nil
}

// ContentRecall 是基于 ContentModel 的召回源：以 rctx.ItemID 为参考物品。
type ContentRecall struct {
	Model *ContentModel

	// TopK 返回的物品数；<=0 时使用 rctx.K
	TopK int
}

func (r *ContentRecall) Name() string {
	return "recall.content"
}

func (r *ContentRecall) Recall(
	_ context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if r.Model == nil || rctx == nil || rctx.ItemID == "" {
		return nil, nil
	}
	k := r.TopK
	if k <= 0 {
		k = rctx.K
	}
	scored, err := r.Model.Recommend(rctx.ItemID, k)
	if err != nil {
		return nil, err
	}
	return toItems("content", scored), nil
}
