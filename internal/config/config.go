// Package config loads yomark configuration: defaults, overridden by the
// JSON config file, overridden by YOMARK_* environment variables. It is read
// once at startup; nothing here participates in runtime logic.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
)

type Config struct {
	Server   ServerConfig
	Ollama   OllamaConfig
	Recall   RecallConfig
	Storage  StorageConfig
	Log      LogConfig
	Storages []StorageLocation
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type RecallConfig struct {
	SemanticWeight float64
	LexicalWeight  float64
	DefaultLimit   int
	MaxLimit       int
	QueryTimeoutMS int
	EnableSemantic bool
	CacheSize      int
}

type StorageConfig struct {
	// DataDir holds yomark's own state: the vector cache database, the API
	// token, and the server PID file. Bookmark files live under the
	// configured storage locations instead.
	DataDir       string
	LockTimeoutMS int
}

type LogConfig struct {
	Level string
}

// StorageLocation is a named partition of the bookmark collection.
type StorageLocation struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	IsCurrent bool   `json:"is_current,omitempty"`
	IsDefault bool   `json:"is_default,omitempty"`
}

var storageNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Recall: RecallConfig{
			SemanticWeight: 0.55,
			LexicalWeight:  0.45,
			DefaultLimit:   20,
			MaxLimit:       50,
			QueryTimeoutMS: 1200,
			EnableSemantic: true,
			CacheSize:      10000,
		},
		Storage: StorageConfig{
			DataDir:       dataDir,
			LockTimeoutMS: 5000,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storages: []StorageLocation{
			{Name: "personal", Path: filepath.Join(dataDir, "personal"), IsCurrent: true, IsDefault: true},
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/yomark/config.json, then applies YOMARK_* environment
// overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	if err := applyStorages(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyStorages reads the structured storage location list, which doesn't
// fit the flat key scheme.
func applyStorages(cfg *Config, b Backend) error {
	raw, ok := b.GetRaw("storage.locations")
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("reading storage.locations: %w", err)
	}
	var locations []StorageLocation
	if err := json.Unmarshal(data, &locations); err != nil {
		return fmt.Errorf("parsing storage.locations: %w", err)
	}
	if len(locations) > 0 {
		cfg.Storages = locations
	}
	return nil
}

func (c Config) validate() error {
	if len(c.Storages) == 0 {
		return fmt.Errorf("at least one storage location is required")
	}
	seen := make(map[string]struct{}, len(c.Storages))
	for _, s := range c.Storages {
		if !storageNamePattern.MatchString(s.Name) {
			return fmt.Errorf("storage name %q must contain only letters, numbers, dashes, and underscores", s.Name)
		}
		if s.Path == "" {
			return fmt.Errorf("storage %s: path cannot be empty", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate storage name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// CurrentStorage resolves the active storage location name: the one marked
// is_current, else the first configured.
func (c Config) CurrentStorage() string {
	for _, s := range c.Storages {
		if s.IsCurrent {
			return s.Name
		}
	}
	if len(c.Storages) > 0 {
		return c.Storages[0].Name
	}
	return ""
}

// StorageNames returns all configured storage location names, in config order.
func (c Config) StorageNames() []string {
	names := make([]string, len(c.Storages))
	for i, s := range c.Storages {
		names[i] = s.Name
	}
	return names
}

// AddStorage persists a new storage location to the config file.
func AddStorage(loc StorageLocation) error {
	if !storageNamePattern.MatchString(loc.Name) {
		return fmt.Errorf("storage name %q must contain only letters, numbers, dashes, and underscores", loc.Name)
	}
	b := newFileBackend()
	cfg := defaults()
	if err := applyStorages(&cfg, b); err != nil {
		return err
	}
	for _, s := range cfg.Storages {
		if s.Name == loc.Name {
			return fmt.Errorf("storage %q already exists", loc.Name)
		}
	}
	return b.SetRaw("storage.locations", append(cfg.Storages, loc))
}
