package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Rendezvous struct {
		Address         string        `yaml:"address"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		MeetingTTL      time.Duration `yaml:"meeting_ttl"`
	} `yaml:"rendezvous"`

	Client struct {
		RendezvousURL  string        `yaml:"rendezvous_url"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		ICEServers     []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
	} `yaml:"client"`

	Media struct {
		Width         int           `yaml:"width"`
		Height        int           `yaml:"height"`
		FrameRate     int           `yaml:"frame_rate"`
		TransformURL  string        `yaml:"transform_url"`
		FrameTimeout  time.Duration `yaml:"frame_timeout"`
		FallbackAfter int           `yaml:"fallback_after"` // consecutive transform failures before raw fallback
	} `yaml:"media"`

	Presence struct {
		ReactionTTL   time.Duration `yaml:"reaction_ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"presence"`

	Assistant struct {
		BaseURL string        `yaml:"base_url"`
		Model   string        `yaml:"model"`
		Timeout time.Duration `yaml:"timeout"`
		// APIKey comes from MESHCALL_ASSISTANT_KEY, never from the file.
	} `yaml:"assistant"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		ResumeTokenTTL time.Duration `yaml:"resume_token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Rendezvous.Address == "" {
		return fmt.Errorf("rendezvous.address must not be empty")
	}
	if c.Rendezvous.PingInterval <= 0 {
		return fmt.Errorf("rendezvous.ping_interval must be > 0")
	}
	if c.Rendezvous.PongTimeout <= 0 {
		return fmt.Errorf("rendezvous.pong_timeout must be > 0")
	}
	if c.Rendezvous.MeetingTTL <= 0 {
		return fmt.Errorf("rendezvous.meeting_ttl must be > 0")
	}

	if c.Client.RendezvousURL == "" {
		return fmt.Errorf("client.rendezvous_url must not be empty")
	}
	if c.Client.ConnectTimeout <= 0 {
		return fmt.Errorf("client.connect_timeout must be > 0")
	}

	if c.Media.Width <= 0 || c.Media.Height <= 0 {
		return fmt.Errorf("media.width and media.height must be > 0")
	}
	if c.Media.FrameRate <= 0 {
		return fmt.Errorf("media.frame_rate must be > 0")
	}
	if c.Media.FallbackAfter <= 0 {
		return fmt.Errorf("media.fallback_after must be > 0")
	}

	if c.Presence.ReactionTTL <= 0 {
		return fmt.Errorf("presence.reaction_ttl must be > 0")
	}
	if c.Presence.SweepInterval <= 0 || c.Presence.SweepInterval >= c.Presence.ReactionTTL {
		return fmt.Errorf("presence.sweep_interval must be > 0 and < reaction_ttl")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.ResumeTokenTTL <= 0 {
		return fmt.Errorf("auth.resume_token_ttl must be > 0")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file falls back to defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Rendezvous.Address = ":8081"
	cfg.Rendezvous.PingInterval = 30 * time.Second
	cfg.Rendezvous.PongTimeout = 60 * time.Second
	cfg.Rendezvous.WriteTimeout = 10 * time.Second
	cfg.Rendezvous.ShutdownTimeout = 30 * time.Second
	cfg.Rendezvous.MeetingTTL = 12 * time.Hour

	cfg.Client.RendezvousURL = "ws://localhost:8081/ws"
	cfg.Client.ConnectTimeout = 30 * time.Second

	cfg.Media.Width = 640
	cfg.Media.Height = 480
	cfg.Media.FrameRate = 15
	cfg.Media.FrameTimeout = 100 * time.Millisecond
	cfg.Media.FallbackAfter = 10

	cfg.Presence.ReactionTTL = 2000 * time.Millisecond
	cfg.Presence.SweepInterval = 500 * time.Millisecond

	cfg.Assistant.BaseURL = "https://api.openai.com/v1"
	cfg.Assistant.Model = "gpt-4o-mini"
	cfg.Assistant.Timeout = 20 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.ResumeTokenTTL = 24 * time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("MESHCALL_RENDEZVOUS_ADDRESS"); addr != "" {
		c.Rendezvous.Address = addr
	}
	if url := os.Getenv("MESHCALL_RENDEZVOUS_URL"); url != "" {
		c.Client.RendezvousURL = url
	}
	if level := os.Getenv("MESHCALL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("MESHCALL_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("MESHCALL_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}
