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
		key: "server.port", typ: kInt, env: "LEARNBOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_enabled", typ: kBool, env: "LEARNBOT_SERVER_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPEnabled },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LEARNBOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "LEARNBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "dialogue.compound_sentiment", typ: kBool, env: "LEARNBOT_DIALOGUE_COMPOUND_SENTIMENT",
		apply:   func(cfg *Config, v any) { cfg.Dialogue.CompoundSentiment = v.(bool) },
		extract: func(cfg Config) any { return cfg.Dialogue.CompoundSentiment },
	},
	{
		key: "annotator.timeout", typ: kString, env: "LEARNBOT_ANNOTATOR_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Annotator.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Annotator.Timeout },
	},
	{
		key: "annotator.lexicon_path", typ: kString, env: "LEARNBOT_ANNOTATOR_LEXICON_PATH",
		apply:   func(cfg *Config, v any) { cfg.Annotator.LexiconPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Annotator.LexiconPath },
	},
	{
		key: "ingest.poll_interval", typ: kString, env: "LEARNBOT_INGEST_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Ingest.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Ingest.PollInterval },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
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
		}
	}
}
