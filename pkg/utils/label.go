package utils

import "strings"

// Label 标记一条推荐从哪里来、经过了什么处理，例如 recall_source=content|collaborative。
// Source 是写入 Label 的阶段（recall / filter / rerank / postprocess）。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Values 返回 '|' 分隔的全部取值
func (l Label) Values() []string {
	if l.Value == "" {
		return nil
	}
	return strings.Split(l.Value, "|")
}

// MergeLabel 合并同名 Label：Value 以 '|'、Source 以 ',' 累积，已存在的片段不重复追加。
// 同一物品被两个召回源命中时得到 recall_source=content|collaborative, source=recall。
func MergeLabel(existing, incoming Label) Label {
	return Label{
		Value:  appendUnique(existing.Value, incoming.Value, "|"),
		Source: appendUnique(existing.Source, incoming.Source, ","),
	}
}

func appendUnique(cur, add, sep string) string {
	switch {
	case add == "":
		return cur
	case cur == "":
		return add
	}
	for _, part := range strings.Split(cur, sep) {
		if part == add {
			return cur
		}
	}
	return cur + sep + add
}
