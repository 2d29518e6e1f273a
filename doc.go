// Package bookrec 是一个混合图书推荐服务。
//
// 设计要点：
// - 内容召回（TF-IDF + 余弦相似度）优先，基于用户的协同过滤补充，去重后截断
// - 模型以不可变快照发布，训练与查询互不阻塞
// - Pipeline 串联召回、过滤、截断与详情补全（recall → filter → rerank → postprocess）
// - 模型产物可持久化到 file / memory / redis / badger，多进程部署时通过 Watch 热加载
package bookrec

import (
	"github.com/rushteam/bookrec/pipeline"
	"github.com/rushteam/bookrec/recommender"
)

// 轻量 facade：便于直接 import "bookrec" 使用核心抽象。
type (
	Recommender    = recommender.Recommender
	Recommendation = recommender.Recommendation
	Pipeline       = pipeline.Pipeline
	Node           = pipeline.Node
)

// New 创建 Recommender，等价于 recommender.New
func New(cfg recommender.Config, opts ...recommender.Option) *Recommender {
	return recommender.New(cfg, opts...)
}
