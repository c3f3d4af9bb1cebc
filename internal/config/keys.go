package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "YOMARK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "YOMARK_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "YOMARK_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "recall.semantic_weight", typ: kFloat, env: "YOMARK_RECALL_SEMANTIC_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Recall.SemanticWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Recall.SemanticWeight },
	},
	{
		key: "recall.lexical_weight", typ: kFloat, env: "YOMARK_RECALL_LEXICAL_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Recall.LexicalWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Recall.LexicalWeight },
	},
	{
		key: "recall.default_limit", typ: kInt, env: "YOMARK_RECALL_DEFAULT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Recall.DefaultLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Recall.DefaultLimit },
	},
	{
		key: "recall.max_limit", typ: kInt, env: "YOMARK_RECALL_MAX_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Recall.MaxLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Recall.MaxLimit },
	},
	{
		key: "recall.query_timeout_ms", typ: kInt, env: "YOMARK_RECALL_QUERY_TIMEOUT_MS",
		apply:   func(cfg *Config, v any) { cfg.Recall.QueryTimeoutMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Recall.QueryTimeoutMS },
	},
	{
		key: "recall.enable_semantic", typ: kBool, env: "YOMARK_RECALL_ENABLE_SEMANTIC",
		apply:   func(cfg *Config, v any) { cfg.Recall.EnableSemantic = v.(bool) },
		extract: func(cfg Config) any { return cfg.Recall.EnableSemantic },
	},
	{
		key: "recall.cache_size", typ: kInt, env: "YOMARK_RECALL_CACHE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Recall.CacheSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Recall.CacheSize },
	},
	{
		key: "storage.data_dir", typ: kString, env: "YOMARK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.lock_timeout_ms", typ: kInt, env: "YOMARK_STORAGE_LOCK_TIMEOUT_MS",
		apply:   func(cfg *Config, v any) { cfg.Storage.LockTimeoutMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Storage.LockTimeoutMS },
	},
	{
		key: "log.level", typ: kString, env: "YOMARK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
