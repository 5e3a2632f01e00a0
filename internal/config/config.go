package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Dialogue  DialogueConfig
	Annotator AnnotatorConfig
	Ingest    IngestConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type DialogueConfig struct {
	// CompoundSentiment adds a sentence's sentiment once per recognized
	// word instead of once per sentence.
	CompoundSentiment bool
}

type AnnotatorConfig struct {
	Timeout     string
	LexiconPath string
}

type IngestConfig struct {
	PollInterval string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       4100,
			MCPEnabled: true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Dialogue: DialogueConfig{
			CompoundSentiment: true,
		},
		Annotator: AnnotatorConfig{
			Timeout: "10s",
		},
		Ingest: IngestConfig{
			PollInterval: "500ms",
		},
	}
}

// Load reads configuration from the platform-native backend and
// environment variables.
//
// On macOS the backend is UserDefaults (domain: com.learnbot.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/learnbot/config.json.
//
// Environment variables (LEARNBOT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if _, err := cfg.AnnotatorTimeout(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.PollInterval(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AnnotatorTimeout parses annotator.timeout.
func (c Config) AnnotatorTimeout() (time.Duration, error) {
	return parseDuration("annotator.timeout", c.Annotator.Timeout)
}

// PollInterval parses ingest.poll_interval.
func (c Config) PollInterval() (time.Duration, error) {
	return parseDuration("ingest.poll_interval", c.Ingest.PollInterval)
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid duration for %s: must be positive", key)
	}
	return d, nil
}

// SlogLevel maps log.level to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	keychainService = "learnbot"
	tokenAccount    = "api_token"
)

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store: the login keychain on
// macOS, a secrets file under the data directory elsewhere.
func NewKeychain() Keychain {
	return keychainStore{}
}

type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token for the HTTP API, generating and
// storing a new one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if token, err := kc.Get(keychainService, tokenAccount); err == nil && token != "" {
		return token, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := kc.Set(keychainService, tokenAccount, token); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return token, nil
}
