package core

// RecallConfig 是召回相关的配置接口，用于提供默认值。
type RecallConfig interface {
	// DefaultKNeighbors 返回协同过滤的默认近邻数
	DefaultKNeighbors() int

	// DefaultTopK 返回默认返回的物品数
	DefaultTopK() int

	// DefaultStopWords 返回 TF-IDF 默认停用词表
	DefaultStopWords() []string
}

// DefaultRecallConfig 是默认的召回配置实现。
// 停用词表由 recall 包提供，这里返回 nil 表示使用内置英文停用词。
type DefaultRecallConfig struct{}

func (c *DefaultRecallConfig) DefaultKNeighbors() int {
	return 20
}

func (c *DefaultRecallConfig) DefaultTopK() int {
	return 5
}

func (c *DefaultRecallConfig) DefaultStopWords() []string {
	return nil
}
