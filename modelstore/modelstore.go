// Package modelstore 把内容模型与协同过滤模型持久化到任意 core.Store。
//
// # Storage Format
//
// 每次 Save 产生一个以 uuid 为版本号的产物集：
//
//	{prefix}:{version}:content        gob + gzip 的 recall.ContentState
//	{prefix}:{version}:collaborative  gob + gzip 的 recall.CollaborativeState
//	{prefix}:manifest                 JSON，指向当前产物并记录 sha256
//
// 产物先写入，manifest 最后写入；manifest 的单 key 写入是原子的，
// 因此 Load 要么看到旧的完整产物集，要么看到新的完整产物集。
package modelstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/recall"
)

const (
	kindContent       = "content"
	kindCollaborative = "collaborative"

	// DefaultPrefix 是默认 key 前缀
	DefaultPrefix = "bookrec"

	// DefaultKeepVersions 是默认保留的产物集数量
	DefaultKeepVersions = 3
)

// Artifact 描述产物集中的一个模型
type Artifact struct {
	Key       string    `json:"key"`
	Checksum  string    `json:"checksum"`
	SizeBytes int64     `json:"size_bytes"`
	BuiltAt   time.Time `json:"built_at"`
	Items     int       `json:"items"`
	Users     int       `json:"users,omitempty"`
}

// Version 是一个已保存的产物集
type Version struct {
	ID            string    `json:"id"`
	SavedAt       time.Time `json:"saved_at"`
	Content       *Artifact `json:"content,omitempty"`
	Collaborative *Artifact `json:"collaborative,omitempty"`
}

// Manifest 指向当前产物集，History 由新到旧（包含当前版本）。
type Manifest struct {
	Current Version   `json:"current"`
	History []Version `json:"history"`
}

// Loaded 是 Load 的结果；某类模型从未保存过时对应字段为 nil。
type Loaded struct {
	Content       *recall.ContentModel
	Collaborative *recall.CollaborativeModel
	Version       Version
}

// ModelStore 管理模型产物的保存与加载。Save 单写者串行执行。
type ModelStore struct {
	store  core.Store
	prefix string
	keep   int

	mu sync.Mutex
}

// Option 配置 ModelStore
type Option func(*ModelStore)

// WithPrefix 设置 key 前缀
func WithPrefix(prefix string) Option {
	return func(s *ModelStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithKeepVersions 设置保留的产物集数量（至少 1）
func WithKeepVersions(n int) Option {
	return func(s *ModelStore) {
		if n > 0 {
			s.keep = n
		}
	}
}

// New 创建 ModelStore
func New(store core.Store, opts ...Option) *ModelStore {
	s := &ModelStore{
		store:  store,
		prefix: DefaultPrefix,
		keep:   DefaultKeepVersions,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ManifestKey 返回 manifest 的 key（供 Watch 使用）
func (s *ModelStore) ManifestKey() string {
	return s.prefix + ":manifest"
}

// Store 返回底层存储
func (s *ModelStore) Store() core.Store {
	return s.store
}

func (s *ModelStore) artifactKey(version, kind string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, version, kind)
}

// Save 写入一个新的产物集。content 或 collab 为 nil 时沿用上一版本中对应的产物。
func (s *ModelStore) Save(ctx context.Context, content *recall.ContentModel, collab *recall.CollaborativeModel) (*Version, error) {
	if content == nil && collab == nil {
		return nil, core.NewDomainError(core.ModuleModelStore, core.ErrorCodeNotReady, "modelstore: nothing to save")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.readManifest(ctx)
	if err != nil && !core.IsModelNotFound(err) {
		return nil, err
	}

	v := Version{ID: uuid.NewString(), SavedAt: time.Now()}
	kvs := make(map[string][]byte, 2)

	if content != nil {
		key := s.artifactKey(v.ID, kindContent)
		data, sum, err := encode(content.State())
		if err != nil {
			return nil, core.NewIOError(core.ModuleModelStore, "encode content", err)
		}
		kvs[key] = data
		v.Content = &Artifact{Key: key, Checksum: sum, SizeBytes: int64(len(data)), BuiltAt: content.BuiltAt(), Items: content.Len()}
	} else if prev != nil {
		v.Content = prev.Current.Content
	}

	if collab != nil {
		key := s.artifactKey(v.ID, kindCollaborative)
		data, sum, err := encode(collab.State())
		if err != nil {
			return nil, core.NewIOError(core.ModuleModelStore, "encode collaborative", err)
		}
		kvs[key] = data
		v.Collaborative = &Artifact{Key: key, Checksum: sum, SizeBytes: int64(len(data)), BuiltAt: collab.BuiltAt(), Items: collab.Items(), Users: collab.Users()}
	} else if prev != nil {
		v.Collaborative = prev.Current.Collaborative
	}

	if err := s.store.BatchSet(ctx, kvs); err != nil {
		return nil, core.NewIOError(core.ModuleModelStore, "write artifacts", err)
	}

	m := Manifest{Current: v, History: []Version{v}}
	if prev != nil {
		m.History = append(m.History, prev.History...)
	}
	var dropped []Version
	if len(m.History) > s.keep {
		dropped = m.History[s.keep:]
		m.History = m.History[:s.keep]
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, core.NewIOError(core.ModuleModelStore, "encode manifest", err)
	}
	if err := s.store.Set(ctx, s.ManifestKey(), data); err != nil {
		return nil, core.NewIOError(core.ModuleModelStore, "write manifest", err)
	}

	// manifest 已切换，清理不再被引用的旧产物；失败不影响本次保存
	s.prune(ctx, m.History, dropped)
	return &v, nil
}

func (s *ModelStore) prune(ctx context.Context, kept, dropped []Version) {
	live := make(map[string]struct{})
	for _, v := range kept {
		for _, a := range []*Artifact{v.Content, v.Collaborative} {
			if a != nil {
				live[a.Key] = struct{}{}
			}
		}
	}
	for _, v := range dropped {
		for _, a := range []*Artifact{v.Content, v.Collaborative} {
			if a == nil {
				continue
			}
			if _, ok := live[a.Key]; ok {
				continue
			}
			_ = s.store.Delete(ctx, a.Key)
		}
	}
}

func (s *ModelStore) readManifest(ctx context.Context) (*Manifest, error) {
	data, err := s.store.Get(ctx, s.ManifestKey())
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, core.NewDomainError(core.ModuleModelStore, core.ErrorCodeModelNotFound, "modelstore: no persisted models")
		}
		return nil, core.NewIOError(core.ModuleModelStore, "read manifest", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, core.NewIOError(core.ModuleModelStore, "decode manifest", err)
	}
	return &m, nil
}

// Load 读取当前产物集并重建模型。
// 没有 manifest 时返回 MODEL_NOT_FOUND；产物缺失或校验失败返回 IO_ERROR。
func (s *ModelStore) Load(ctx context.Context) (*Loaded, error) {
	m, err := s.readManifest(ctx)
	if err != nil {
		return nil, err
	}
	cur := m.Current
	if cur.Content == nil && cur.Collaborative == nil {
		return nil, core.NewDomainError(core.ModuleModelStore, core.ErrorCodeModelNotFound, "modelstore: manifest references no artifacts")
	}

	keys := make([]string, 0, 2)
	for _, a := range []*Artifact{cur.Content, cur.Collaborative} {
		if a != nil {
			keys = append(keys, a.Key)
		}
	}
	blobs, err := s.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, core.NewIOError(core.ModuleModelStore, "read artifacts", err)
	}

	out := &Loaded{Version: cur}
	if a := cur.Content; a != nil {
		var st recall.ContentState
		if err := s.readArtifact(blobs, a, &st); err != nil {
			return nil, err
		}
		if out.Content, err = recall.ContentModelFromState(&st); err != nil {
			return nil, err
		}
	}
	if a := cur.Collaborative; a != nil {
		var st recall.CollaborativeState
		if err := s.readArtifact(blobs, a, &st); err != nil {
			return nil, err
		}
		if out.Collaborative, err = recall.CollaborativeModelFromState(&st); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *ModelStore) readArtifact(blobs map[string][]byte, a *Artifact, target any) error {
	data, ok := blobs[a.Key]
	if !ok {
		return core.NewIOError(core.ModuleModelStore, "read artifact "+a.Key, core.ErrStoreNotFound)
	}
	if err := decode(data, a.Checksum, target); err != nil {
		return core.NewIOError(core.ModuleModelStore, "load artifact "+a.Key, err)
	}
	return nil
}

// Versions 返回保留的产物集，由新到旧；没有 manifest 时返回 MODEL_NOT_FOUND。
func (s *ModelStore) Versions(ctx context.Context) ([]Version, error) {
	m, err := s.readManifest(ctx)
	if err != nil {
		return nil, err
	}
	return m.History, nil
}

// Close 释放底层存储
func (s *ModelStore) Close() error {
	return s.store.Close()
}
