package recall

// IndexMap 是 id 与矩阵行号之间的双向映射，与其索引的矩阵一起构建、一起发布。
type IndexMap struct {
	ids   []string
	index map[string]int
}

// NewIndexMap 按给定顺序分配行号；出现重复 id 时返回 false。
func NewIndexMap(ids []string) (*IndexMap, bool) {
	m := &IndexMap{
		ids:   make([]string, len(ids)),
		index: make(map[string]int, len(ids)),
	}
	for i, id := range ids {
		if _, dup := m.index[id]; dup {
			return nil, false
		}
		m.ids[i] = id
		m.index[id] = i
	}
	return m, true
}

// Index 返回 id 对应的行号
func (m *IndexMap) Index(id string) (int, bool) {
	if m == nil {
		return 0, false
	}
	i, ok := m.index[id]
	return i, ok
}

// ID 返回行号对应的 id
func (m *IndexMap) ID(i int) string {
	return m.ids[i]
}

// Len 返回条目数
func (m *IndexMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ids)
}

// IDs 返回按行号排列的 id 副本
func (m *IndexMap) IDs() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}
