package builders

import (
	"path/filepath"
	"testing"

	"github.com/rushteam/bookrec/config"
)

func TestRegistered(t *testing.T) {
	wantSources := []string{"file", "http", "sqlite"}
	if got := config.SupportedSources(); len(got) != len(wantSources) {
		t.Errorf("SupportedSources() = %v", got)
	}
	wantStores := []string{"badger", "file", "memory", "redis"}
	got := config.SupportedStores()
	if len(got) != len(wantStores) {
		t.Fatalf("SupportedStores() = %v", got)
	}
	for i := range wantStores {
		if got[i] != wantStores[i] {
			t.Errorf("SupportedStores()[%d] = %s, want %s", i, got[i], wantStores[i])
		}
	}
}

func TestBuildFromConfig(t *testing.T) {
	dir := t.TempDir()

	st, err := config.BuildStore(config.StoreConfig{Backend: "file", Options: map[string]any{"path": dir}})
	if err != nil {
		t.Fatalf("BuildStore(file): %v", err)
	}
	if st.Name() != "file" {
		t.Errorf("Name() = %s", st.Name())
	}
	_ = st.Close()

	st, err = config.BuildStore(config.StoreConfig{Backend: "badger"})
	if err != nil {
		t.Fatalf("BuildStore(badger in-memory): %v", err)
	}
	_ = st.Close()

	src, err := config.BuildSource(config.SourceConfig{Type: "sqlite", Options: map[string]any{"dsn": filepath.Join(dir, "x.db")}})
	if err != nil {
		t.Fatalf("BuildSource(sqlite): %v", err)
	}
	_ = src.Close()

	if _, err := config.BuildSource(config.SourceConfig{Type: "file", Options: map[string]any{}}); err == nil {
		t.Error("file source without catalog_path should fail")
	}
	if _, err := config.BuildSource(config.SourceConfig{Type: "http", Options: map[string]any{"timeout": "5s"}}); err == nil {
		t.Error("http source without base_url should fail")
	}
}
