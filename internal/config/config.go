// Package config loads the agent configuration from a YAML file, an optional
// env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hal9000y/workspace-agent/internal/agent"
	"github.com/hal9000y/workspace-agent/internal/approval"
	"github.com/hal9000y/workspace-agent/internal/fetch"
	"github.com/hal9000y/workspace-agent/internal/llm/gemini"
	"github.com/hal9000y/workspace-agent/internal/store"
)

const (
	EnvGeminiAPIKey      = "GEMINI_API_KEY"
	EnvOAuthClientID     = "OAUTH_GOOGLE_CLIENT_ID"
	EnvOAuthClientSecret = "OAUTH_GOOGLE_CLIENT_SECRET"
)

type Server struct {
	Address string `yaml:"address"`
	// OAuthURL overrides the redirect URL derived from the listen address.
	OAuthURL    string `yaml:"oauth_url"`
	OpenBrowser bool   `yaml:"open_browser"`
}

type Model struct {
	Name        string  `yaml:"name"`
	Temperature float32 `yaml:"temperature"`
	APIKey      string  `yaml:"-"`
}

type Agent struct {
	MaxSteps      int  `yaml:"max_steps"`
	ParallelTools bool `yaml:"parallel_tools"`
}

type Fetch struct {
	Concurrency   int     `yaml:"concurrency"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

type Approval struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Google struct {
	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
	// TokenFile caches the OAuth token, empty to keep it in memory only.
	TokenFile string `yaml:"token_file"`
}

type Log struct {
	Debug bool `yaml:"debug"`
	// File receives logs instead of stdout. Required to see logs of the stdio MCP server.
	File string `yaml:"file"`
}

type Config struct {
	Server   Server       `yaml:"server"`
	Model    Model        `yaml:"model"`
	Agent    Agent        `yaml:"agent"`
	Fetch    Fetch        `yaml:"fetch"`
	Approval Approval     `yaml:"approval"`
	Store    store.Config `yaml:"store"`
	Google   Google       `yaml:"google"`
	Log      Log          `yaml:"log"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Server: Server{Address: "localhost:8080", OpenBrowser: true},
		Model:  Model{Name: gemini.DefaultModel},
		Agent: Agent{
			MaxSteps:      agent.DefaultMaxSteps,
			ParallelTools: true,
		},
		Fetch:    Fetch{Concurrency: fetch.DefaultConcurrency},
		Approval: Approval{Timeout: approval.DefaultTimeout},
		Store:    store.Config{Driver: store.DriverMemory},
		Google:   Google{TokenFile: "./data/workspace-agent-token.json"},
	}
}

// Load reads path over the defaults, loads envFile into the environment and
// picks the secrets from the environment. Both paths are optional.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("os.ReadFile failed: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("yaml.Unmarshal failed: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("godotenv.Load failed: %w", err)
		}
	}

	cfg.Model.APIKey = os.Getenv(EnvGeminiAPIKey)
	cfg.Google.ClientID = os.Getenv(EnvOAuthClientID)
	cfg.Google.ClientSecret = os.Getenv(EnvOAuthClientSecret)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.MaxSteps < 1 {
		errs = append(errs, errors.New("agent.max_steps must be positive"))
	}
	if c.Fetch.Concurrency < 1 {
		errs = append(errs, errors.New("fetch.concurrency must be positive"))
	}
	if c.Fetch.RatePerSecond < 0 {
		errs = append(errs, errors.New("fetch.rate_per_second must not be negative"))
	}
	if c.Approval.Timeout <= 0 {
		errs = append(errs, errors.New("approval.timeout must be positive"))
	}
	switch c.Store.Driver {
	case store.DriverMemory, store.DriverSQLite, store.DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, sqlite, redis", c.Store.Driver))
	}
	if c.Store.Driver == store.DriverSQLite && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required for the sqlite driver"))
	}
	if c.Store.Driver == store.DriverRedis && c.Store.RedisAddr == "" {
		errs = append(errs, errors.New("store.redis_addr is required for the redis driver"))
	}

	return errors.Join(errs...)
}

// RequireGoogle reports missing OAuth client credentials.
func (c *Config) RequireGoogle() error {
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return fmt.Errorf("env variables %s and %s must be set", EnvOAuthClientID, EnvOAuthClientSecret)
	}

	return nil
}

// RequireModel reports a missing model API key.
func (c *Config) RequireModel() error {
	if c.Model.APIKey == "" {
		return fmt.Errorf("env variable %s must be set", EnvGeminiAPIKey)
	}

	return nil
}
