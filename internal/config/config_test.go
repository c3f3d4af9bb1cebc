package config

import (
	"strconv"
	"strings"
	"testing"
)

// memBackend is an in-memory Backend for tests.
type memBackend struct {
	data map[string]any
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]any)}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	if s, ok := v.(string); ok {
		return s, true, nil
	}
	return "", false, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int:
		return val, true, nil
	case string:
		i, err := strconv.Atoi(val)
		return i, true, err
	}
	return 0, false, nil
}

func (b *memBackend) GetRaw(key string) (any, bool) {
	v, ok := b.data[key]
	return v, ok
}

func (b *memBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *memBackend) SetRaw(key string, val any) error { b.data[key] = val; return nil }
func (b *memBackend) Delete(key string) error          { delete(b.data, key); return nil }

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 4400 {
		t.Errorf("port = %d, want 4400", cfg.Server.Port)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("embed model = %q", cfg.Ollama.EmbedModel)
	}
	if cfg.Recall.SemanticWeight != 0.55 || cfg.Recall.LexicalWeight != 0.45 {
		t.Errorf("weights = %v/%v, want 0.55/0.45", cfg.Recall.SemanticWeight, cfg.Recall.LexicalWeight)
	}
	if !cfg.Recall.EnableSemantic {
		t.Error("semantic recall should default on")
	}
	if len(cfg.Storages) != 1 || cfg.Storages[0].Name != "personal" {
		t.Errorf("storages = %+v, want single default 'personal'", cfg.Storages)
	}
	if cfg.CurrentStorage() != "personal" {
		t.Errorf("current storage = %q", cfg.CurrentStorage())
	}
}

func TestLoad_BackendOverrides(t *testing.T) {
	b := newMemBackend()
	b.SetInt("server.port", 9000)
	b.SetString("ollama.embed_model", "mxbai-embed-large")
	b.SetString("recall.semantic_weight", "0.7")
	b.SetString("recall.enable_semantic", "false")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Ollama.EmbedModel != "mxbai-embed-large" {
		t.Errorf("embed model = %q", cfg.Ollama.EmbedModel)
	}
	if cfg.Recall.SemanticWeight != 0.7 {
		t.Errorf("semantic weight = %v, want 0.7", cfg.Recall.SemanticWeight)
	}
	if cfg.Recall.EnableSemantic {
		t.Error("enable_semantic = true, want false")
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	b := newMemBackend()
	b.SetInt("server.port", 9000)
	t.Setenv("YOMARK_SERVER_PORT", "9100")
	t.Setenv("YOMARK_RECALL_DEFAULT_LIMIT", "7")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Recall.DefaultLimit != 7 {
		t.Errorf("default limit = %d, want 7", cfg.Recall.DefaultLimit)
	}
}

func TestLoad_BadEnvValueFallsBackToDefault(t *testing.T) {
	t.Setenv("YOMARK_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 4400 {
		t.Errorf("port = %d, want default 4400", cfg.Server.Port)
	}
}

func TestLoad_StorageLocations(t *testing.T) {
	b := newMemBackend()
	b.SetRaw("storage.locations", []any{
		map[string]any{"name": "personal", "path": "/tmp/personal"},
		map[string]any{"name": "work", "path": "/tmp/work", "is_current": true},
	})

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Storages) != 2 {
		t.Fatalf("storages = %d, want 2", len(cfg.Storages))
	}
	if cfg.CurrentStorage() != "work" {
		t.Errorf("current = %q, want work", cfg.CurrentStorage())
	}
	names := cfg.StorageNames()
	if names[0] != "personal" || names[1] != "work" {
		t.Errorf("names = %v", names)
	}
}

func TestValidate_StorageNames(t *testing.T) {
	tests := []struct {
		name    string
		locs    []any
		wantErr string
	}{
		{
			"bad characters",
			[]any{map[string]any{"name": "my storage!", "path": "/tmp/x"}},
			"letters, numbers",
		},
		{
			"empty path",
			[]any{map[string]any{"name": "ok", "path": ""}},
			"path",
		},
		{
			"duplicate names",
			[]any{
				map[string]any{"name": "dup", "path": "/tmp/a"},
				map[string]any{"name": "dup", "path": "/tmp/b"},
			},
			"duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newMemBackend()
			b.SetRaw("storage.locations", tt.locs)
			_, err := loadWith(b)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetAPIToken(t *testing.T) {
	dir := t.TempDir()

	tok1, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if len(tok1) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(tok1))
	}

	tok2, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if tok1 != tok2 {
		t.Error("token not stable across calls")
	}

	t.Setenv("YOMARK_API_TOKEN", "override-token")
	tok3, err := GetAPIToken(dir)
	if err != nil {
		t.Fatal(err)
	}
	if tok3 != "override-token" {
		t.Errorf("token = %q, env var must win", tok3)
	}
}

func TestShowAllAndValidKeys(t *testing.T) {
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatal(err)
	}

	keys := ShowAll(cfg)
	if len(keys) != len(ValidKeys()) {
		t.Errorf("ShowAll = %d entries, ValidKeys = %d", len(keys), len(ValidKeys()))
	}
	found := false
	for _, k := range keys {
		if k.Key == "recall.semantic_weight" {
			found = true
			if k.Value != "0.55" {
				t.Errorf("semantic_weight shown as %q, want 0.55", k.Value)
			}
		}
	}
	if !found {
		t.Error("recall.semantic_weight missing from ShowAll")
	}
}
