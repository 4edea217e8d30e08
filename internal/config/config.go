// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config is the orchestrator configuration, loaded from a YAML file with
// AITRADER_* environment variable overrides.
type Config struct {
	ListenAddr   string `mapstructure:"listen_addr"`
	PostgresURL  string `mapstructure:"postgres_url"`
	DebugLogging bool   `mapstructure:"debug_logging"`

	Docker   DockerConfig   `mapstructure:"docker"`
	Manager  ManagerConfig  `mapstructure:"manager"`
	Services ServicesConfig `mapstructure:"services"`
}

// DockerConfig configures the container runtime used to host bot agents.
type DockerConfig struct {
	Image         string `mapstructure:"image"`
	ConfigDir     string `mapstructure:"config_dir"`
	Network       string `mapstructure:"network"`
	HealthTimeout int    `mapstructure:"health_timeout"`
}

// ManagerConfig tunes lifecycle behavior.
type ManagerConfig struct {
	StartRetries      int `mapstructure:"start_retries"`
	StopGraceSeconds  int `mapstructure:"stop_grace_seconds"`
	ReconcileInterval int `mapstructure:"reconcile_interval"`
}

// ServicesConfig holds the external service endpoints handed to bot agents.
type ServicesConfig struct {
	NewsURL         string `mapstructure:"news_url"`
	NewsAPIKey      string `mapstructure:"news_api_key"`
	MemoryURL       string `mapstructure:"memory_url"`
	MemoryAPIKey    string `mapstructure:"memory_api_key"`
	LLMModel        string `mapstructure:"llm_model"`
	LLMBaseURL      string `mapstructure:"llm_base_url"`
	LLMAPIKey       string `mapstructure:"llm_api_key"`
	FallbackModel   string `mapstructure:"fallback_model"`
	FallbackBaseURL string `mapstructure:"fallback_base_url"`
	FallbackAPIKey  string `mapstructure:"fallback_api_key"`
}

const (
	DefaultListenAddr        = ":8080"
	DefaultImage             = "aitrader/agent:latest"
	DefaultConfigDir         = "/var/lib/aitrader/configs"
	DefaultHealthTimeout     = 30
	DefaultStartRetries      = 3
	DefaultStopGrace         = 10
	DefaultReconcileInterval = 60
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"listen_addr":                DefaultListenAddr,
		"docker.image":               DefaultImage,
		"docker.config_dir":          DefaultConfigDir,
		"docker.health_timeout":      DefaultHealthTimeout,
		"manager.start_retries":      DefaultStartRetries,
		"manager.stop_grace_seconds": DefaultStopGrace,
		"manager.reconcile_interval": DefaultReconcileInterval,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.PostgresURL == "" {
		return errors.New("missing postgres_url in configuration")
	}
	if cfg.Docker.Image == "" {
		return errors.New("docker.image is empty")
	}
	if cfg.Services.NewsURL != "" {
		if err := validateURLWithCache(cfg.Services.NewsURL, "http"); err != nil {
			return errors.New("invalid news service URL")
		}
	}
	if cfg.Services.MemoryURL != "" {
		if err := validateURLWithCache(cfg.Services.MemoryURL, "http"); err != nil {
			return errors.New("invalid memory service URL")
		}
	}
	if cfg.Services.LLMBaseURL != "" {
		if err := validateURLWithCache(cfg.Services.LLMBaseURL, "http"); err != nil {
			return errors.New("invalid llm base URL")
		}
	}
	if cfg.Services.FallbackBaseURL != "" {
		if err := validateURLWithCache(cfg.Services.FallbackBaseURL, "http"); err != nil {
			return errors.New("invalid fallback llm base URL")
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Docker.HealthTimeout <= 0 {
		return errors.New("invalid docker.health_timeout")
	}
	if cfg.Manager.StartRetries < 0 {
		return errors.New("invalid manager.start_retries")
	}
	if cfg.Manager.StopGraceSeconds <= 0 {
		return errors.New("invalid manager.stop_grace_seconds")
	}
	if cfg.Manager.ReconcileInterval <= 0 {
		return errors.New("invalid manager.reconcile_interval")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("AITRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if env := v.GetString("POSTGRES_URL"); env != "" {
		cfg.PostgresURL = env
	}
	if env := v.GetString("LISTEN_ADDR"); env != "" {
		cfg.ListenAddr = env
	}
	if env := v.GetString("NEWS_API_KEY"); env != "" {
		cfg.Services.NewsAPIKey = env
	}
	if env := v.GetString("MEMORY_API_KEY"); env != "" {
		cfg.Services.MemoryAPIKey = env
	}
	if env := v.GetString("LLM_API_KEY"); env != "" {
		cfg.Services.LLMAPIKey = env
	}
	if env := v.GetString("FALLBACK_API_KEY"); env != "" {
		cfg.Services.FallbackAPIKey = env
	}
	return nil
}
