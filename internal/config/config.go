package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	State     StateConfig     `yaml:"state"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicURL is the externally reachable base URL, used for sign-in
	// links and the OIDC redirect.
	PublicURL string `yaml:"public_url"`
}

type DBConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TransportConfig struct {
	// Mode is "stdio" or "http".
	Mode string `yaml:"mode"`
}

type AuthConfig struct {
	Enabled       bool            `yaml:"enabled"`
	APIToken      string          `yaml:"api_token"`
	SessionSecret string          `yaml:"session_secret"`
	SessionTTL    time.Duration   `yaml:"session_ttl"`
	EmailLink     EmailLinkConfig `yaml:"email_link"`
	OIDC          OIDCConfig      `yaml:"oidc"`
}

type EmailLinkConfig struct {
	BaseURL   string        `yaml:"base_url"`
	TTL       time.Duration `yaml:"ttl"`
	RateEvery time.Duration `yaml:"rate_every"`
	RateBurst int           `yaml:"rate_burst"`
	ReturnURL string        `yaml:"return_url"`
}

type OIDCConfig struct {
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// Enabled reports whether an OIDC provider is configured.
func (c OIDCConfig) Enabled() bool {
	return c.Issuer != "" && c.ClientID != ""
}

type StateConfig struct {
	// Path is the local state file. Empty keeps state in memory.
	Path string `yaml:"path"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Driver: "sqlite",
			Path:   "lanes.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		Auth: AuthConfig{
			SessionTTL: 30 * 24 * time.Hour,
			EmailLink: EmailLinkConfig{
				TTL:       15 * time.Minute,
				RateEvery: 10 * time.Second,
				RateBurst: 5,
			},
			OIDC: OIDCConfig{
				Scopes: []string{"openid", "email", "profile"},
			},
		},
		State: StateConfig{
			Path: "lanes-state.yaml",
		},
	}

	if path := os.Getenv("LANES_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid db driver %q", c.DB.Driver)
	}
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	if c.Transport.Mode == "http" && c.Auth.Enabled && c.Auth.APIToken == "" {
		return fmt.Errorf("auth.api_token is required when auth is enabled")
	}
	if c.Auth.EmailLink.RateBurst < 1 {
		return fmt.Errorf("auth.email_link.rate_burst must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("LANES_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("LANES_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid LANES_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if publicURL := os.Getenv("LANES_PUBLIC_URL"); publicURL != "" {
		cfg.Server.PublicURL = publicURL
	}
	if driver := os.Getenv("LANES_DB_DRIVER"); driver != "" {
		cfg.DB.Driver = driver
	}
	if dbPath := os.Getenv("LANES_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("LANES_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if mode := os.Getenv("LANES_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if enabled := os.Getenv("LANES_AUTH_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid LANES_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = v
	}
	if token := os.Getenv("LANES_API_TOKEN"); token != "" {
		cfg.Auth.APIToken = token
	}
	if secret := os.Getenv("LANES_SESSION_SECRET"); secret != "" {
		cfg.Auth.SessionSecret = secret
	}
	if ttl := os.Getenv("LANES_EMAIL_LINK_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("invalid LANES_EMAIL_LINK_TTL: %w", err)
		}
		cfg.Auth.EmailLink.TTL = d
	}
	if base := os.Getenv("LANES_EMAIL_LINK_BASE_URL"); base != "" {
		cfg.Auth.EmailLink.BaseURL = base
	}
	if issuer := os.Getenv("LANES_OIDC_ISSUER"); issuer != "" {
		cfg.Auth.OIDC.Issuer = issuer
	}
	if clientID := os.Getenv("LANES_OIDC_CLIENT_ID"); clientID != "" {
		cfg.Auth.OIDC.ClientID = clientID
	}
	if secret := os.Getenv("LANES_OIDC_CLIENT_SECRET"); secret != "" {
		cfg.Auth.OIDC.ClientSecret = secret
	}
	if redirect := os.Getenv("LANES_OIDC_REDIRECT_URL"); redirect != "" {
		cfg.Auth.OIDC.RedirectURL = redirect
	}
	if scopes := os.Getenv("LANES_OIDC_SCOPES"); scopes != "" {
		cfg.Auth.OIDC.Scopes = strings.Split(scopes, ",")
	}
	if statePath, ok := os.LookupEnv("LANES_STATE_PATH"); ok {
		cfg.State.Path = statePath
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
