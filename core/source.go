package core

import (
	"context"
	"time"
)

// CatalogSource 提供目录快照（外部协作方：数据库 / 后端 API / 文件）。
type CatalogSource interface {
	FetchCatalog(ctx context.Context) ([]Book, error)
}

// InteractionSource 提供评分快照，since 为零值时表示不限时间窗口。
type InteractionSource interface {
	FetchInteractions(ctx context.Context, since time.Time) ([]Interaction, error)
}

// DataSource 同时提供目录与评分，由 config 注册表按类型构建。
type DataSource interface {
	Name() string
	CatalogSource
	InteractionSource
	Close() error
}
