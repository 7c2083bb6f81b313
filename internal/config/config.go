package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Generation GenerationConfig `mapstructure:"generation"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type BudgetConfig struct {
	// Daily spending ceiling per user, GBP
	DailyLimitGBP float64 `mapstructure:"daily_limit_gbp"`
	// Fraction of the daily limit at which a Warning alert fires (0.8 = 80%)
	AlertThresholdPct float64 `mapstructure:"alert_threshold_pct"`
	// When true, users at or over the limit are denied admission
	EmergencyThrottlingEnabled bool `mapstructure:"emergency_throttling_enabled"`
	// Minimum interval between repeated alerts of the same type per user
	MinAlertInterval time.Duration `mapstructure:"min_alert_interval"`
	// IANA zone defining the ledger's calendar day
	TimeZone string `mapstructure:"time_zone"`
}

type GenerationConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	// Per-attempt wall-clock budget for the backend call
	Timeout time.Duration `mapstructure:"timeout"`
	// Extra attempts after the first, transient failures only
	MaxRetries int `mapstructure:"max_retries"`
	MaxTokens  int `mapstructure:"max_tokens"`
	// Player input is trimmed to this many characters before prompting
	MaxInputChars int `mapstructure:"max_input_chars"`
	// Replies are capped at this length before moderation
	MaxReplyChars int `mapstructure:"max_reply_chars"`
	// Estimated cost per completion call, GBP
	CostPerCallGBP float64 `mapstructure:"cost_per_call_gbp"`
}

type ModerationConfig struct {
	// Wall-clock budget for one moderation pass across all validators
	Timeout time.Duration `mapstructure:"timeout"`
	// Verdict approval threshold on the weighted confidence score
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	SafetyWeight        float64 `mapstructure:"safety_weight"`
	AgeWeight           float64 `mapstructure:"age_weight"`
	EducationalWeight   float64 `mapstructure:"educational_weight"`
	// Verdict cache TTL for the client pre-check endpoint
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.AutomaticEnv()
	v.BindEnv("generation.api_key", "GENERATION_API_KEY")
	v.BindEnv("generation.base_url", "GENERATION_BASE_URL")
	v.BindEnv("storage.redis.addr", "REDIS_ADDR")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("budget.daily_limit_gbp", 0.08)
	v.SetDefault("budget.alert_threshold_pct", 0.80)
	v.SetDefault("budget.emergency_throttling_enabled", true)
	v.SetDefault("budget.min_alert_interval", 15*time.Minute)
	v.SetDefault("budget.time_zone", "Europe/London")

	v.SetDefault("generation.timeout", 10*time.Second)
	v.SetDefault("generation.max_retries", 1)
	v.SetDefault("generation.max_tokens", 300)
	v.SetDefault("generation.max_input_chars", 1000)
	v.SetDefault("generation.max_reply_chars", 400)
	v.SetDefault("generation.cost_per_call_gbp", 0.001)

	v.SetDefault("moderation.timeout", 3*time.Second)
	v.SetDefault("moderation.confidence_threshold", 0.70)
	v.SetDefault("moderation.safety_weight", 0.60)
	v.SetDefault("moderation.age_weight", 0.25)
	v.SetDefault("moderation.educational_weight", 0.15)
	v.SetDefault("moderation.cache_ttl", 5*time.Minute)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.memory.default_expiration", 48*time.Hour)
	v.SetDefault("storage.memory.cleanup_interval", time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 20)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics.enabled", true)
	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en"})
	v.SetDefault("i18n.directory", "configs/i18n")
}

// Validate checks the invariants a reloaded config must also satisfy.
func Validate(cfg *Config) error {
	if cfg.Budget.DailyLimitGBP <= 0 {
		return fmt.Errorf("budget daily limit must be positive")
	}
	if cfg.Budget.AlertThresholdPct <= 0 || cfg.Budget.AlertThresholdPct >= 1 {
		return fmt.Errorf("alert threshold must be between 0 and 1")
	}
	if _, err := time.LoadLocation(cfg.Budget.TimeZone); err != nil {
		return fmt.Errorf("invalid budget time zone %q: %w", cfg.Budget.TimeZone, err)
	}
	if cfg.Generation.CostPerCallGBP <= 0 {
		return fmt.Errorf("generation cost per call must be positive")
	}
	if cfg.Generation.MaxRetries < 0 {
		return fmt.Errorf("generation max retries must not be negative")
	}
	if cfg.Moderation.ConfidenceThreshold < 0 || cfg.Moderation.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1]")
	}
	total := cfg.Moderation.SafetyWeight + cfg.Moderation.AgeWeight + cfg.Moderation.EducationalWeight
	if total <= 0 {
		return fmt.Errorf("validator weights must sum to a positive value")
	}
	if cfg.Moderation.SafetyWeight < cfg.Moderation.AgeWeight || cfg.Moderation.SafetyWeight < cfg.Moderation.EducationalWeight {
		return fmt.Errorf("safety weight must dominate the other validator weights")
	}
	switch cfg.Storage.Type {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	return nil
}
