package core

import (
	"strings"

	"github.com/rushteam/bookrec/pkg/utils"
)

// Book 是目录中的一本书（推荐的候选物品）。
type Book struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Author      string   `json:"author" yaml:"author"`
	Subjects    []string `json:"subjects,omitempty" yaml:"subjects"`
	Description string   `json:"description,omitempty" yaml:"description"`
	CoverURL    string   `json:"cover_url,omitempty" yaml:"cover_url"`
}

// CombinedText 拼接 title、author、subjects、description，作为内容模型的输入文本。
// 每次从源字段重新计算，不单独存储。
func (b Book) CombinedText() string {
	return b.Title + " " + b.Author + " " + strings.Join(b.Subjects, " ") + " " + b.Description
}

// Interaction 是一条用户对物品的评分。
type Interaction struct {
	UserID string  `json:"user_id" yaml:"user_id"`
	ItemID string  `json:"item_id" yaml:"item_id"`
	Rating float64 `json:"rating" yaml:"rating"`
}

// Item 是推荐链路中的统一承载结构：分数、展示信息、标签。
// Labels 用于解释（来自哪个召回源）；Score 用于排序决策。
type Item struct {
	ID       string
	Score    float64
	Title    string
	Author   string
	CoverURL string
	Labels   map[string]utils.Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:     id,
		Labels: make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// ApplyBook 用目录信息填充展示字段。
func (it *Item) ApplyBook(b Book) {
	it.Title = b.Title
	it.Author = b.Author
	it.CoverURL = b.CoverURL
}
