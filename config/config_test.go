package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushteam/bookrec/core"
)

func init() {
	RegisterSource("file", func(map[string]any) (core.DataSource, error) { return nil, nil })
	RegisterStore("file", func(map[string]any) (core.Store, error) { return nil, nil })
	RegisterStore("memory", func(map[string]any) (core.Store, error) { return nil, nil })
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil {
		t.Fatalf("missing explicit config file should fail, got %+v", cfg)
	}

	chdir(t, t.TempDir())
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.KNeighbors != 20 || cfg.Model.DefaultK != 5 || cfg.Model.NeighborMean != "all" {
		t.Errorf("model defaults = %+v", cfg.Model)
	}
	if cfg.Training.Schedule != "0 2 * * *" || cfg.Training.Window != 7*24*time.Hour {
		t.Errorf("training defaults = %+v", cfg.Training)
	}
	if cfg.Store.Backend != "file" || cfg.Store.Options["path"] != "./data/models" {
		t.Errorf("store defaults = %+v", cfg.Store)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bookrec.yaml")
	content := `
model:
  k_neighbors: 10
  stop_words: [the, a]
store:
  backend: memory
training:
  window: 48h
  retry_delay: 2s
  interaction_filter: "interaction.rating >= 3.0"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOOKREC_MODEL__K_NEIGHBORS", "30")
	t.Setenv("BOOKREC_MODEL__BLOCKED_ITEMS", "b1, b2,")
	t.Setenv("BOOKREC_SERVER__ADDR", ":9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.KNeighbors != 30 {
		t.Errorf("env should override file: k_neighbors = %d", cfg.Model.KNeighbors)
	}
	if len(cfg.Model.StopWords) != 2 || cfg.Model.StopWords[0] != "the" {
		t.Errorf("stop_words = %v", cfg.Model.StopWords)
	}
	if len(cfg.Model.BlockedItems) != 2 || cfg.Model.BlockedItems[1] != "b2" {
		t.Errorf("blocked_items = %v", cfg.Model.BlockedItems)
	}
	if cfg.Store.Backend != "memory" || cfg.Server.Addr != ":9000" {
		t.Errorf("store/server = %+v / %+v", cfg.Store, cfg.Server)
	}
	if cfg.Training.Window != 48*time.Hour || cfg.Training.RetryDelay != 2*time.Second {
		t.Errorf("durations = %v / %v", cfg.Training.Window, cfg.Training.RetryDelay)
	}
}

func TestModelConfig_StopWordList(t *testing.T) {
	var m ModelConfig
	if got := m.StopWordList(); got != nil {
		t.Errorf("default = %v, want nil (built-in list)", got)
	}
	m.StopWords = []string{"the"}
	if got := m.StopWordList(); len(got) != 1 || got[0] != "the" {
		t.Errorf("custom = %v", got)
	}
	m.DisableStopWords = true
	if got := m.StopWordList(); got == nil || len(got) != 0 {
		t.Errorf("disabled = %#v, want empty non-nil slice", got)
	}
}

func TestLoad_DisableStopWordsFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKREC_MODEL__DISABLE_STOP_WORDS", "true")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Model.DisableStopWords || cfg.Model.StopWordList() == nil {
		t.Errorf("model = %+v", cfg.Model)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad cron", func(c *Config) { c.Training.Schedule = "every day" }},
		{"bad neighbor mean", func(c *Config) { c.Model.NeighborMean = "median" }},
		{"zero k neighbors", func(c *Config) { c.Model.KNeighbors = 0 }},
		{"max k below default", func(c *Config) { c.Model.MaxK = 1; c.Model.DefaultK = 5 }},
		{"bad filter", func(c *Config) { c.Training.CatalogFilter = "book.title ==" }},
		{"unknown source", func(c *Config) { c.Source.Type = "kafka" }},
		{"unknown store", func(c *Config) { c.Store.Backend = "s3" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	base := Default()
	if err := base.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestBuildUnknownType(t *testing.T) {
	if _, err := BuildSource(SourceConfig{Type: "nope"}); err == nil {
		t.Error("BuildSource(nope) should fail")
	}
	if _, err := BuildStore(StoreConfig{Backend: "nope"}); err == nil {
		t.Error("BuildStore(nope) should fail")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"BOOKREC_MODEL__K_NEIGHBORS":   "model.k_neighbors",
		"BOOKREC_STORE__OPTIONS__PATH": "store.options.path",
		"BOOKREC_CONFIG":               "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir for older toolchains).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}
