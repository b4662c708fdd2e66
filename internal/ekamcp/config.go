package ekamcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses from human-friendly strings (e.g., "60s") or numeric seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}
	var seconds int64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return err
	}
	d.Duration = time.Duration(seconds) * time.Second
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err == nil {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		d.Duration = time.Duration(seconds) * time.Second
		return nil
	}
	return errors.New("invalid duration format")
}

type User struct {
	Name  string `json:"name" yaml:"name"`
	Token string `json:"token" yaml:"token"`
}

// Config holds everything the server needs at construction time. The core
// components never read the environment themselves; the env overlay happens
// here and only here.
type Config struct {
	APIBaseURL   string `json:"api_base_url" yaml:"api_base_url"`
	AuthBaseURL  string `json:"auth_base_url" yaml:"auth_base_url"` // defaults to api_base_url
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	APIKey       string `json:"api_key" yaml:"api_key"`

	// AccessToken switches the server into external-token mode: the host
	// supplies the credential and the issuer is never called.
	AccessToken string `json:"access_token" yaml:"access_token"`

	StateDir  string `json:"state_dir" yaml:"state_dir"`
	Transport string `json:"transport" yaml:"transport"` // "stdio" or "http"
	Listen    string `json:"listen" yaml:"listen"`
	LogLevel  string `json:"log_level" yaml:"log_level"`

	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
	RefreshSkew    Duration `json:"refresh_skew" yaml:"refresh_skew"`
	// MaxRetries is the retry count after the first attempt. 0 means the
	// default; -1 disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	RetryBackoff   Duration `json:"retry_backoff" yaml:"retry_backoff"`

	// Users guards the http transport; empty means unauthenticated access.
	Users []User `json:"users" yaml:"users"`
}

// TokenPath returns where the acquired token record is persisted.
func (c *Config) TokenPath() string {
	return filepath.Join(c.StateDir, "tokens.json")
}

func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return Config{
		APIBaseURL:     "https://api.eka.care",
		StateDir:       filepath.Join(home, ".eka-mcp"),
		Transport:      "stdio",
		Listen:         ":8000",
		LogLevel:       "info",
		RequestTimeout: Duration{Duration: 30 * time.Second},
		RefreshSkew:    Duration{Duration: defaultRefreshSkew},
		MaxRetries:     defaultMaxRetries,
		RetryBackoff:   Duration{Duration: defaultRetryBackoff},
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		format := detectFormat(path)
		if err := decodeConfig(format, data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	ensureDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides layers credentials and endpoints from the environment on
// top of the file values. Environment wins for secrets so deployments never
// need to write them to disk.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EKA_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("EKA_AUTH_BASE_URL"); v != "" {
		cfg.AuthBaseURL = v
	}
	if v := os.Getenv("EKA_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("EKA_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if v := os.Getenv("EKA_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("EKA_ACCESS_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
	if v := os.Getenv("EKA_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api_base_url cannot be empty")
	}
	if _, err := url.Parse(c.APIBaseURL); err != nil {
		return fmt.Errorf("api_base_url: %w", err)
	}

	if c.StateDir == "" {
		return errors.New("state_dir cannot be empty")
	}

	switch c.Transport {
	case "stdio":
	case "http":
		if c.Listen == "" {
			return errors.New("listen address cannot be empty for http transport")
		}
	default:
		return fmt.Errorf("unknown transport: %s", c.Transport)
	}

	// Either a host-managed token or a full client-credentials pair.
	if c.AccessToken == "" {
		if c.ClientID == "" || c.ClientSecret == "" {
			return errors.New("client_id and client_secret are required when no access_token is supplied")
		}
	}

	if c.RequestTimeout.Duration <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.RefreshSkew.Duration <= 0 {
		return errors.New("refresh_skew must be positive")
	}
	if c.MaxRetries < -1 {
		return errors.New("max_retries must be -1 (disabled), 0 (default), or positive")
	}
	if c.RetryBackoff.Duration <= 0 {
		return errors.New("retry_backoff must be positive")
	}

	// Validate user tokens
	if len(c.Users) > 0 {
		seen := make(map[string]string, len(c.Users))
		for _, user := range c.Users {
			if user.Name == "" {
				return errors.New("user name cannot be empty")
			}
			if user.Token == "" {
				return fmt.Errorf("user %s: token cannot be empty", user.Name)
			}
			if len(user.Token) < 16 {
				return fmt.Errorf("user %s: token too short (minimum 16 characters)", user.Name)
			}
			if existingUser, exists := seen[user.Token]; exists {
				return fmt.Errorf("duplicate token for users %s and %s", existingUser, user.Name)
			}
			seen[user.Token] = user.Name
		}
	}

	return nil
}

func detectFormat(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return "json"
	case ".yml", ".yaml":
		return "yaml"
	default:
		return "yaml" // prefer YAML when ambiguous
	}
}

func decodeConfig(format string, data []byte, cfg *Config) error {
	switch format {
	case "json":
		return json.Unmarshal(data, cfg)
	case "yaml":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format: %s", format)
	}
}

func ensureDefaults(cfg *Config) {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultConfig().APIBaseURL
	}
	if cfg.AuthBaseURL == "" {
		cfg.AuthBaseURL = cfg.APIBaseURL
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultConfig().StateDir
	}
	if cfg.Transport == "" {
		cfg.Transport = DefaultConfig().Transport
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultConfig().Listen
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultConfig().LogLevel
	}
	if cfg.RequestTimeout.Duration == 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.RefreshSkew.Duration == 0 {
		cfg.RefreshSkew = DefaultConfig().RefreshSkew
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.RetryBackoff.Duration == 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
}
