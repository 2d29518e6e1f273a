// Package config 加载应用配置：结构体默认值 -> YAML 文件（可选）-> 环境变量。
//
// 环境变量以 BOOKREC_ 为前缀，双下划线表示层级，例如：
//
//	BOOKREC_MODEL__K_NEIGHBORS=30        -> model.k_neighbors
//	BOOKREC_STORE__OPTIONS__PATH=/data   -> store.options.path
//	BOOKREC_MODEL__BLOCKED_ITEMS=b1,b2   -> model.blocked_items（逗号分隔）
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	"github.com/rushteam/bookrec/logging"
	"github.com/rushteam/bookrec/pkg/dsl"
	"github.com/rushteam/bookrec/recall"
)

const (
	// EnvPrefix 是环境变量前缀
	EnvPrefix = "BOOKREC_"

	// ConfigPathEnvVar 指定配置文件路径
	ConfigPathEnvVar = "BOOKREC_CONFIG"
)

// DefaultConfigPaths 按顺序查找的配置文件
var DefaultConfigPaths = []string{
	"bookrec.yaml",
	"bookrec.yml",
	"/etc/bookrec/bookrec.yaml",
}

// Config 是应用配置
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Model    ModelConfig    `koanf:"model"`
	Store    StoreConfig    `koanf:"store"`
	Source   SourceConfig   `koanf:"source"`
	Training TrainingConfig `koanf:"training"`
	Logging  logging.Config `koanf:"logging"`
}

// ServerConfig 是 HTTP 服务配置
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	// RateLimit 每个 IP 每分钟的推荐请求数，0 表示不限流
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`
}

// ModelConfig 是模型超参数
type ModelConfig struct {
	KNeighbors int `koanf:"k_neighbors" validate:"gte=1"`
	// StopWords 为空时使用内置英文停用词；DisableStopWords 为 true 时不过滤停用词
	StopWords        []string `koanf:"stop_words"`
	DisableStopWords bool     `koanf:"disable_stop_words"`
	DefaultK     int      `koanf:"default_k" validate:"gte=1"`
	MaxK         int      `koanf:"max_k" validate:"gtefield=DefaultK"`
	NeighborMean string   `koanf:"neighbor_mean" validate:"oneof=all raters"`
	Workers      int      `koanf:"workers" validate:"gte=0"`
	BlockedItems []string `koanf:"blocked_items"`
}

// StopWordList 返回交给内容模型的停用词表：nil 表示内置英文停用词，空切片表示不过滤。
func (m ModelConfig) StopWordList() []string {
	if m.DisableStopWords {
		return []string{}
	}
	if len(m.StopWords) == 0 {
		return nil
	}
	return m.StopWords
}

// StoreConfig 是模型产物存储配置
type StoreConfig struct {
	Backend      string `koanf:"backend" validate:"required"`
	Prefix       string `koanf:"prefix" validate:"required"`
	KeepVersions int    `koanf:"keep_versions" validate:"gte=1"`
	// Watch 是否监听其他进程发布的新模型
	Watch bool `koanf:"watch"`
	// BlacklistKey 运营黑名单在存储中的 key，为空时只使用 model.blocked_items
	BlacklistKey string         `koanf:"blacklist_key"`
	Options      map[string]any `koanf:"options"`
}

// SourceConfig 是训练数据源配置
type SourceConfig struct {
	Type    string         `koanf:"type" validate:"required"`
	Options map[string]any `koanf:"options"`
}

// TrainingConfig 是定时训练配置
type TrainingConfig struct {
	Schedule          string        `koanf:"schedule"`
	OnStartup         bool          `koanf:"on_startup"`
	Window            time.Duration `koanf:"window" validate:"gte=0"`
	RetryAttempts     int           `koanf:"retry_attempts" validate:"gte=1"`
	RetryDelay        time.Duration `koanf:"retry_delay" validate:"gte=0"`
	Timeout           time.Duration `koanf:"timeout" validate:"gte=0"`
	CatalogFilter     string        `koanf:"catalog_filter"`
	InteractionFilter string        `koanf:"interaction_filter"`
}

// Default 返回默认配置
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       120,
		},
		Model: ModelConfig{
			KNeighbors:   recall.DefaultKNeighbors,
			DefaultK:     5,
			MaxK:         100,
			NeighborMean: recall.NeighborMeanAll,
		},
		Store: StoreConfig{
			Backend:      "file",
			Prefix:       "bookrec",
			KeepVersions: 3,
			Watch:        true,
			Options:      map[string]any{"path": "./data/models"},
		},
		Source: SourceConfig{
			Type: "file",
			Options: map[string]any{
				"catalog_path":      "./data/books.json",
				"interactions_path": "./data/interactions.json",
			},
		},
		Training: TrainingConfig{
			Schedule:      "0 2 * * *",
			OnStartup:     true,
			Window:        7 * 24 * time.Hour,
			RetryAttempts: 3,
			RetryDelay:    5 * time.Second,
			Timeout:       30 * time.Minute,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// sliceConfigPaths 在环境变量中以逗号分隔的列表字段
var sliceConfigPaths = []string{
	"server.cors_origins",
	"model.stop_words",
	"model.blocked_items",
}

// Load 加载配置。path 为空时依次查找 BOOKREC_CONFIG 与 DefaultConfigPaths，都不存在则只用默认值和环境变量。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate 执行结构体标签校验与语义校验（cron 表达式、CEL 过滤器、已注册的后端类型）。
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return err
	}

	var errs []error
	if c.Training.Schedule != "" {
		if _, err := cron.ParseStandard(c.Training.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("training.schedule: %w", err))
		}
	}
	if _, err := dsl.Compile(c.Training.CatalogFilter); err != nil {
		errs = append(errs, fmt.Errorf("training.catalog_filter: %w", err))
	}
	if _, err := dsl.Compile(c.Training.InteractionFilter); err != nil {
		errs = append(errs, fmt.Errorf("training.interaction_filter: %w", err))
	}
	if !isRegistered(sourceBuilders, c.Source.Type) {
		errs = append(errs, fmt.Errorf("source.type: unsupported %q (supported: %v)", c.Source.Type, SupportedSources()))
	}
	if !isRegistered(storeBuilders, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("store.backend: unsupported %q (supported: %v)", c.Store.Backend, SupportedStores()))
	}
	return errors.Join(errs...)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc: BOOKREC_MODEL__K_NEIGHBORS -> model.k_neighbors
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
