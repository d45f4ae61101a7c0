// Package config loads memctl's settings.json, layered under environment
// variables, layered under built-in defaults, via viper — the donor's own
// config package keeps a yaml/local split; this one keeps the same
// layering philosophy with a JSON primary file since the spec settles on
// settings.json as the canonical on-disk format.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Settings is the fully-resolved configuration for one memory engine
// instance.
type Settings struct {
	ProjectDir string `mapstructure:"project_dir"`
	MemoryDir  string `mapstructure:"memory_dir"`
	DBPath     string `mapstructure:"db_path"`

	VectorDim int `mapstructure:"vector_dim"`

	// AIProvider selects the Provider implementation (spec §6); the
	// remaining AI* fields, read from AGENTKITS_AI_API_KEY / _BASE_URL /
	// _MODEL / _ENRICHMENT, configure it.
	AIProvider        string `mapstructure:"provider"`
	AIAPIKey          string `mapstructure:"api_key"`
	AIBaseURL         string `mapstructure:"base_url"`
	AIModel           string `mapstructure:"model"`
	EnrichmentEnabled bool   `mapstructure:"enrichment"`

	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`

	EmbeddingCacheMaxSize int `mapstructure:"embedding_cache_max_size"`

	SessionResumeWindow time.Duration `mapstructure:"session_resume_window"`
	ArchiveAfter        time.Duration `mapstructure:"archive_after"`
	PurgeAfter          time.Duration `mapstructure:"purge_after"`
	DedupWindow         time.Duration `mapstructure:"dedup_window"`

	LogLevel string `mapstructure:"log_level"`

	// MetricsEnabled turns on the optional OpenTelemetry counters/histograms
	// around search latency, cache hit rate, and worker throughput.
	// MetricsFile is where they're periodically exported as stdout-metric
	// JSON lines; empty means stderr.
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsFile    string `mapstructure:"metrics_file"`
}

// defaults seeds every key Settings can hold so a settings.json that omits
// a key still produces a usable configuration.
func defaults(v *viper.Viper) {
	v.SetDefault("memory_dir", ".agentkits/memory")
	v.SetDefault("db_path", "memory.db")
	v.SetDefault("vector_dim", 384)
	v.SetDefault("provider", "mock")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("model", "")
	v.SetDefault("enrichment", true)
	v.SetDefault("cache_size", 500)
	v.SetDefault("cache_ttl", "10m")
	v.SetDefault("embedding_cache_max_size", 10000)
	v.SetDefault("session_resume_window", "30m")
	v.SetDefault("archive_after", "168h")
	v.SetDefault("purge_after", "720h")
	v.SetDefault("dedup_window", "5m")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("metrics_file", "")
}

// Load resolves Settings from, in ascending precedence:
// built-in defaults < settings.json in projectDir < environment
// variables prefixed AGENTKITS_AI_, plus CLAUDE_PROJECT_DIR overriding
// project_dir directly (so the MCP server launched from an editor
// integration inherits the calling project without a settings.json).
func Load(projectDir string) (*Settings, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigName("settings")
	v.SetConfigType("json")
	v.AddConfigPath(projectDir)
	v.AddConfigPath(filepath.Join(projectDir, ".agentkits"))

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading settings.json: %w", err)
		}
	}

	v.SetEnvPrefix("agentkits_ai")
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}

	if s.ProjectDir == "" {
		s.ProjectDir = projectDir
	}
	if claudeDir := os.Getenv("CLAUDE_PROJECT_DIR"); claudeDir != "" {
		s.ProjectDir = claudeDir
	}
	if !filepath.IsAbs(s.MemoryDir) {
		s.MemoryDir = filepath.Join(s.ProjectDir, s.MemoryDir)
	}
	if !filepath.IsAbs(s.DBPath) {
		s.DBPath = filepath.Join(s.MemoryDir, s.DBPath)
	}

	return &s, nil
}
