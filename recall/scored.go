package recall

import (
	"sort"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/pkg/utils"
)

// Scored 是模型查询结果中的一项
type Scored struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// scoredIdx 携带行号，用于确定性的并列排序
type scoredIdx struct {
	idx   int
	score float64
}

// topByScore 按分数降序、行号升序排序后截取前 k 个
func topByScore(cands []scoredIdx, k int) []scoredIdx {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].idx < cands[j].idx
	})
	if k < len(cands) {
		cands = cands[:k]
	}
	return cands
}

// toItems 把查询结果转为链路中的 Item，并打上召回来源标签
func toItems(source string, scored []Scored) []*core.Item {
	out := make([]*core.Item, 0, len(scored))
	for _, s := range scored {
		it := core.NewItem(s.ID)
		it.Score = s.Score
		it.PutLabel("recall_source", utils.Label{Value: source, Source: "recall"})
		out = append(out, it)
	}
	return out
}
