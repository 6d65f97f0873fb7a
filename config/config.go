// Package config loads service configuration from .env files and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/admissions/ai"
)

// UsageBackend selects the usage-quota store.
type UsageBackend string

const (
	UsageBadger UsageBackend = "badger"
	UsageSQLite UsageBackend = "sqlite"
)

const envPrefix = "ADMISSIONS_"

// Default values
const (
	defaultUserDailyLimit      = 50
	defaultAnonymousDailyLimit = 10
	defaultHistoryTurns        = 6
	defaultAuditTimeout        = 2 * time.Minute
	defaultEvaluatorWorkers    = 8
	defaultRetrievalWorkers    = 8
)

// Config holds the service configuration.
type Config struct {
	DataDir      string
	UsageBackend UsageBackend
	SQLitePath   string
	AI           *ai.Config

	UserDailyLimit      int
	AnonymousDailyLimit int
	Location            *time.Location

	AuditLogPath     string
	AuditTimeout     time.Duration
	EvaluatorWorkers int
	RetrievalWorkers int
	HistoryTurns     int
}

// Load reads the first .env file found, then builds the configuration from
// ADMISSIONS_* environment variables. Variables already set in the
// environment take precedence over .env entries.
func Load() (*Config, error) {
	for _, path := range envPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*Config, error) {
	defaults := ai.DefaultConfig()
	aiCfg := ai.NewConfig(
		ai.WithBackend(ai.Backend(strings.ToLower(getEnvString("CHAT_BACKEND", string(defaults.Backend))))),
		ai.WithChatHost(getEnvString("CHAT_HOST", defaults.ChatHost)),
		ai.WithChatModel(getEnvString("CHAT_MODEL", defaults.ChatModel)),
		ai.WithEmbeddingHost(getEnvString("EMBEDDING_HOST", defaults.EmbeddingHost)),
		ai.WithEmbeddingModel(getEnvString("EMBEDDING_MODEL", defaults.EmbeddingModel)),
		ai.WithAPIKey(getEnvString("API_KEY", defaults.APIKey)),
	)

	dataDir := getEnvString("DATA_DIR", defaultDataDir())
	cfg := &Config{
		DataDir:             dataDir,
		UsageBackend:        UsageBackend(strings.ToLower(getEnvString("USAGE_BACKEND", string(UsageBadger)))),
		SQLitePath:          getEnvString("SQLITE_PATH", filepath.Join(dataDir, "usage.db")),
		AI:                  aiCfg,
		UserDailyLimit:      getEnvInt("USER_DAILY_LIMIT", defaultUserDailyLimit),
		AnonymousDailyLimit: getEnvInt("ANONYMOUS_DAILY_LIMIT", defaultAnonymousDailyLimit),
		AuditLogPath:        getEnvString("AUDIT_LOG", filepath.Join(dataDir, "audit.log")),
		AuditTimeout:        getEnvDuration("AUDIT_TIMEOUT", defaultAuditTimeout),
		EvaluatorWorkers:    getEnvInt("EVALUATOR_WORKERS", defaultEvaluatorWorkers),
		RetrievalWorkers:    getEnvInt("RETRIEVAL_WORKERS", defaultRetrievalWorkers),
		HistoryTurns:        getEnvInt("HISTORY_TURNS", defaultHistoryTurns),
	}

	loc, err := time.LoadLocation(getEnvString("TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("%sTIMEZONE: %w", envPrefix, err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%sDATA_DIR is required", envPrefix)
	}
	switch c.UsageBackend {
	case UsageBadger:
	case UsageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%sSQLITE_PATH is required for the sqlite usage backend", envPrefix)
		}
	default:
		return fmt.Errorf("%sUSAGE_BACKEND: unknown backend %q", envPrefix, c.UsageBackend)
	}
	if c.UserDailyLimit <= 0 || c.AnonymousDailyLimit <= 0 {
		return fmt.Errorf("daily limits must be positive: user=%d anonymous=%d", c.UserDailyLimit, c.AnonymousDailyLimit)
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("%sHISTORY_TURNS must not be negative", envPrefix)
	}
	if c.AI == nil {
		return fmt.Errorf("ai configuration is required")
	}
	return c.AI.Validate()
}

// EnsureDirs creates the data directory and the audit log directory.
func (c *Config) EnsureDirs() error {
	if err := ensureDir(c.DataDir); err != nil {
		return err
	}
	if c.AuditLogPath != "" {
		if err := ensureDir(filepath.Dir(c.AuditLogPath)); err != nil {
			return err
		}
	}
	if c.UsageBackend == UsageSQLite {
		return ensureDir(filepath.Dir(c.SQLitePath))
	}
	return nil
}

// ChunkDBPath is the BadgerDB directory holding chunks, usage and audits.
func (c *Config) ChunkDBPath() string {
	return filepath.Join(c.DataDir, "store")
}

func envPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "admissions", ".env"))
	}
	return paths
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "admissions-data"
	}
	return filepath.Join(home, ".local", "share", "admissions")
}

func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration accepts values like "30s" or "2m", or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
