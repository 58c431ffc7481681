// Package config loads BatVault's service configuration, following the same
// singleton + YAML + environment-override shape as the teacher backend's
// internal/config package.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Policy    PolicyConfig    `yaml:"policy"`
	Budget    BudgetConfig    `yaml:"budget"`
	LLM       LLMConfig       `yaml:"llm"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Retry     RetryConfig     `yaml:"retry"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
}

type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
}

type StorageConfig struct {
	ArangoEndpoints []string `yaml:"arango_endpoints"`
	ArangoDatabase  string   `yaml:"arango_database"`
	ArangoUser      string   `yaml:"arango_user"`
	ArangoPassword  string   `yaml:"arango_password"`
	BatchSize       int      `yaml:"batch_size"`
	VectorIndexKind string   `yaml:"vector_index_kind"`
	VectorDim       int      `yaml:"vector_dim"`
}

type RedisConfig struct {
	URL               string  `yaml:"url"`
	TTLResolverSec    int     `yaml:"ttl_resolver_cache_sec"`
	TTLExpandSec      int     `yaml:"ttl_expand_cache_sec"`
	TTLEvidenceSec    int     `yaml:"ttl_evidence_cache_sec"`
	TTLSchemaSec      int     `yaml:"ttl_schema_cache_sec"`
	SWRThresholdPct   float64 `yaml:"swr_threshold_pct"`
	LoadShedLatencyMs int     `yaml:"load_shed_latency_ms"`
}

type PolicyConfig struct {
	PolicyDir        string `yaml:"policy_dir"`
	SensitivityOrder string `yaml:"sensitivity_order"`
}

type BudgetConfig struct {
	MaxEdges          int     `yaml:"max_edges"`
	MaxEvents         int     `yaml:"max_events"`
	MaxCitedIDs       int     `yaml:"max_cited_ids"`
	ShrinkFactor      float64 `yaml:"shrink_factor"`
	MaxShrinkAttempts int     `yaml:"max_shrink_attempts"`
	CiteAllIDs        bool    `yaml:"cite_all_ids"`
}

type LLMConfig struct {
	Mode               string  `yaml:"mode"`
	ContextWindow      int     `yaml:"context_window"`
	CompletionTokens   int     `yaml:"completion_tokens"`
	PromptGuardTokens  int     `yaml:"prompt_guard_tokens"`
	ShortAnswerMaxChar int     `yaml:"short_answer_max_chars"`
	ShortAnswerMaxSent int     `yaml:"short_answer_max_sentences"`
	CanaryPct          float64 `yaml:"canary_pct"`
	CanaryEnabled      bool    `yaml:"canary_enabled"`
	CanaryHeaderName   string  `yaml:"canary_header_override"`
	ControlEndpoint    string  `yaml:"control_endpoint"`
	CanaryEndpoint     string  `yaml:"canary_endpoint"`
	Retries            int     `yaml:"retries"`
}

type TimeoutsConfig struct {
	SearchMs   int `yaml:"search_ms"`
	ExpandMs   int `yaml:"expand_ms"`
	EnrichMs   int `yaml:"enrich_ms"`
	LLMMs      int `yaml:"llm_ms"`
	ValidateMs int `yaml:"validate_ms"`
}

type RetryConfig struct {
	HTTPRetryBaseMs   int `yaml:"http_retry_base_ms"`
	HTTPRetryJitterMs int `yaml:"http_retry_jitter_ms"`
}

type ArtifactsConfig struct {
	MinioEndpoint string `yaml:"minio_endpoint"`
	MinioBucket   string `yaml:"minio_bucket"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide Config singleton, loading it from
// CONFIG_PATH (default "config.yaml") on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: falling back to defaults", "error", err)
			cfg = &Config{}
		}
		cfg.applyDefaults()
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig reads and parses the YAML file at path. A missing or
// unreadable file is returned as an error; Get then falls back to an empty
// Config with applyDefaults + applyEnvOverrides.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("BV_ENV", c.Server.Env)

	c.Storage.ArangoDatabase = getEnv("ARANGO_DATABASE", c.Storage.ArangoDatabase)
	c.Storage.ArangoUser = getEnv("ARANGO_USER", c.Storage.ArangoUser)
	c.Storage.ArangoPassword = getEnv("ARANGO_PASSWORD", c.Storage.ArangoPassword)
	if eps := getEnv("ARANGO_ENDPOINTS", ""); eps != "" {
		c.Storage.ArangoEndpoints = splitCSV(eps)
	}
	if v := getEnvInt("ARANGO_BATCH_SIZE", 0); v > 0 {
		c.Storage.BatchSize = v
	}

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	if v := getEnvInt("TTL_RESOLVER_CACHE_SEC", 0); v > 0 {
		c.Redis.TTLResolverSec = v
	}
	if v := getEnvInt("TTL_EXPAND_CACHE_SEC", 0); v > 0 {
		c.Redis.TTLExpandSec = v
	}
	if v := getEnvInt("TTL_EVIDENCE_CACHE_SEC", 0); v > 0 {
		c.Redis.TTLEvidenceSec = v
	}
	if v := getEnvInt("TTL_SCHEMA_CACHE_SEC", 0); v > 0 {
		c.Redis.TTLSchemaSec = v
	}

	c.Policy.PolicyDir = getEnv("POLICY_DIR", c.Policy.PolicyDir)
	c.Policy.SensitivityOrder = getEnv("SENSITIVITY_ORDER", c.Policy.SensitivityOrder)

	c.Budget.CiteAllIDs = getEnvBool("CITE_ALL_IDS", c.Budget.CiteAllIDs)

	c.LLM.Mode = getEnv("LLM_MODE", c.LLM.Mode)
	if v := getEnvInt("CONTROL_CONTEXT_WINDOW", 0); v > 0 {
		c.LLM.ContextWindow = v
	}
	if v := getEnvInt("CONTROL_COMPLETION_TOKENS", 0); v > 0 {
		c.LLM.CompletionTokens = v
	}
	if v := getEnvInt("CONTROL_PROMPT_GUARD_TOKENS", 0); v > 0 {
		c.LLM.PromptGuardTokens = v
	}
	if v := getEnvInt("SHORT_ANSWER_MAX_CHARS", 0); v > 0 {
		c.LLM.ShortAnswerMaxChar = v
	}
	if v := getEnvInt("SHORT_ANSWER_MAX_SENTENCES", 0); v > 0 {
		c.LLM.ShortAnswerMaxSent = v
	}
	if v := getEnvFloat("CANARY_PCT", -1); v >= 0 {
		c.LLM.CanaryPct = v
	}
	c.LLM.CanaryEnabled = getEnvBool("CANARY_ENABLED", c.LLM.CanaryEnabled)
	c.LLM.CanaryHeaderName = getEnv("CANARY_HEADER_OVERRIDE", c.LLM.CanaryHeaderName)

	if v := getEnvInt("TIMEOUT_SEARCH_MS", 0); v > 0 {
		c.Timeouts.SearchMs = v
	}
	if v := getEnvInt("TIMEOUT_EXPAND_MS", 0); v > 0 {
		c.Timeouts.ExpandMs = v
	}
	if v := getEnvInt("TIMEOUT_ENRICH_MS", 0); v > 0 {
		c.Timeouts.EnrichMs = v
	}
	if v := getEnvInt("TIMEOUT_LLM_MS", 0); v > 0 {
		c.Timeouts.LLMMs = v
	}
	if v := getEnvInt("TIMEOUT_VALIDATE_MS", 0); v > 0 {
		c.Timeouts.ValidateMs = v
	}

	if v := getEnvInt("HTTP_RETRY_BASE_MS", 0); v > 0 {
		c.Retry.HTTPRetryBaseMs = v
	}
	if v := getEnvInt("HTTP_RETRY_JITTER_MS", 0); v > 0 {
		c.Retry.HTTPRetryJitterMs = v
	}

	c.Artifacts.MinioEndpoint = getEnv("MINIO_ENDPOINT", c.Artifacts.MinioEndpoint)
	c.Artifacts.MinioBucket = getEnv("MINIO_BUCKET", c.Artifacts.MinioBucket)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "dev"
	}
	if c.Redis.TTLResolverSec == 0 {
		c.Redis.TTLResolverSec = 300
	}
	if c.Redis.TTLExpandSec == 0 {
		c.Redis.TTLExpandSec = 60
	}
	if c.Redis.TTLEvidenceSec == 0 {
		c.Redis.TTLEvidenceSec = 900
	}
	if c.Redis.TTLSchemaSec == 0 {
		c.Redis.TTLSchemaSec = 600
	}
	if c.Redis.SWRThresholdPct == 0 {
		c.Redis.SWRThresholdPct = 0.2
	}
	if c.Redis.LoadShedLatencyMs == 0 {
		c.Redis.LoadShedLatencyMs = 100
	}
	if c.Policy.SensitivityOrder == "" {
		c.Policy.SensitivityOrder = "low,medium,high"
	}
	if c.Policy.PolicyDir == "" {
		c.Policy.PolicyDir = "policy/roles"
	}
	if c.Budget.MaxEdges == 0 {
		c.Budget.MaxEdges = 256
	}
	if c.Budget.MaxEvents == 0 {
		c.Budget.MaxEvents = 8
	}
	if c.Budget.MaxCitedIDs == 0 {
		c.Budget.MaxCitedIDs = 8
	}
	if c.Budget.ShrinkFactor == 0 {
		c.Budget.ShrinkFactor = 0.8
	}
	if c.Budget.MaxShrinkAttempts == 0 {
		c.Budget.MaxShrinkAttempts = 2
	}
	if c.LLM.Mode == "" {
		c.LLM.Mode = "auto"
	}
	if c.LLM.ContextWindow == 0 {
		c.LLM.ContextWindow = 2048
	}
	if c.LLM.CompletionTokens == 0 {
		c.LLM.CompletionTokens = 512
	}
	if c.LLM.PromptGuardTokens == 0 {
		c.LLM.PromptGuardTokens = 32
	}
	if c.LLM.ShortAnswerMaxChar == 0 {
		c.LLM.ShortAnswerMaxChar = 320
	}
	if c.LLM.ShortAnswerMaxSent == 0 {
		c.LLM.ShortAnswerMaxSent = 2
	}
	if c.LLM.Retries == 0 {
		c.LLM.Retries = 2
	}
	if c.Timeouts.SearchMs == 0 {
		c.Timeouts.SearchMs = 800
	}
	if c.Timeouts.ExpandMs == 0 {
		c.Timeouts.ExpandMs = 250
	}
	if c.Timeouts.EnrichMs == 0 {
		c.Timeouts.EnrichMs = 600
	}
	if c.Timeouts.LLMMs == 0 {
		c.Timeouts.LLMMs = 1500
	}
	if c.Timeouts.ValidateMs == 0 {
		c.Timeouts.ValidateMs = 300
	}
	if c.Retry.HTTPRetryBaseMs == 0 {
		c.Retry.HTTPRetryBaseMs = 50
	}
	if c.Retry.HTTPRetryJitterMs == 0 {
		c.Retry.HTTPRetryJitterMs = 200
	}
	if c.Storage.BatchSize == 0 {
		c.Storage.BatchSize = 1000
	}
}

func (c *Config) IsProduction() bool  { return c.Server.Env == "production" || c.Server.Env == "prod" }
func (c *Config) IsDevelopment() bool { return c.Server.Env == "dev" || c.Server.Env == "development" }

// SensitivityOrderList returns the ordered sensitivity levels, low to high.
func (c *Config) SensitivityOrderList() []string {
	return splitCSV(c.Policy.SensitivityOrder)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
