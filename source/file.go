package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/bookrec/core"
)

// FileSource 从本地快照文件读取目录与评分，按扩展名识别 JSON / YAML。
//
// 文件内容可以是记录数组，也可以是 {"books": [...]} / {"interactions": [...]} 包装。
type FileSource struct {
	CatalogPath      string
	InteractionsPath string
}

func NewFileSource(catalogPath, interactionsPath string) *FileSource {
	return &FileSource{CatalogPath: catalogPath, InteractionsPath: interactionsPath}
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) FetchCatalog(ctx context.Context) ([]core.Book, error) {
	if s.CatalogPath == "" {
		return nil, core.InvalidInputError(core.ModuleSource, "catalog path not configured")
	}
	var wrapped struct {
		Books []bookRecord `json:"books" yaml:"books"`
	}
	records, err := readRecords(s.CatalogPath, &wrapped, func() []bookRecord { return wrapped.Books })
	if err != nil {
		return nil, err
	}
	return toBooks(records), nil
}

// FetchInteractions 读取评分；文件不存在时返回空列表（尚无评分数据）。
func (s *FileSource) FetchInteractions(ctx context.Context, since time.Time) ([]core.Interaction, error) {
	if s.InteractionsPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(s.InteractionsPath); os.IsNotExist(err) {
		return nil, nil
	}
	var wrapped struct {
		Interactions []interactionRecord `json:"interactions" yaml:"interactions"`
	}
	records, err := readRecords(s.InteractionsPath, &wrapped, func() []interactionRecord { return wrapped.Interactions })
	if err != nil {
		return nil, err
	}
	return toInteractions(records, since), nil
}

func (s *FileSource) Close() error { return nil }

// readRecords 先按数组解析，失败再按包装对象解析
func readRecords[T any](path string, wrapper any, unwrap func() []T) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewIOError(core.ModuleSource, "read "+path, err)
	}

	unmarshal := json.Unmarshal
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	}

	var records []T
	if err := unmarshal(data, &records); err == nil {
		return records, nil
	}
	if err := unmarshal(data, wrapper); err != nil {
		return nil, core.InvalidInputError(core.ModuleSource, "parse %s: %v", path, err)
	}
	return unwrap(), nil
}

var _ core.DataSource = (*FileSource)(nil)

// String 便于日志输出
func (s *FileSource) String() string {
	return fmt.Sprintf("file(%s, %s)", s.CatalogPath, s.InteractionsPath)
}
