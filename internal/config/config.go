// Package config loads agent settings from AGT_* environment variables, an
// optional YAML profile and command-line overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/petasbytes/toolchat/internal/conversation"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Model              string  `env:"AGT_MODEL" envDefault:"claude-3-7-sonnet-latest" validate:"required"`
	MaxTokens          int     `env:"AGT_MAX_TOKENS" envDefault:"100000" validate:"gt=1000"`
	WarningThreshold   float64 `env:"AGT_WARNING_THRESHOLD" envDefault:"0.8" validate:"gt=0,lt=1"`
	SummarizeThreshold float64 `env:"AGT_SUMMARIZE_THRESHOLD" envDefault:"0.9" validate:"gt=0,lt=1,gtfield=WarningThreshold"`
	KeepExchanges      int     `env:"AGT_KEEP_EXCHANGES" envDefault:"2" validate:"gte=1"`
	TokenBudget        int     `env:"AGT_TOKEN_BUDGET" envDefault:"0" validate:"gte=0"`
	MaxResponseTokens  int     `env:"AGT_MAX_RESPONSE_TOKENS" envDefault:"1024" validate:"gt=0"`

	MemoryBackend      string `env:"AGT_MEMORY_BACKEND" envDefault:"file" validate:"oneof=file sqlite memory"`
	MemoryDir          string `env:"AGT_MEMORY_DIR" envDefault:".agent/memory" validate:"required_if=MemoryBackend file"`
	MemorySQLite       string `env:"AGT_MEMORY_SQLITE" envDefault:".agent/memory.db" validate:"required_if=MemoryBackend sqlite"`
	MemoryContextItems int    `env:"AGT_MEMORY_CONTEXT_ITEMS" envDefault:"3" validate:"gte=0"`

	// ConversationPath is where chat saves its snapshot; empty disables saving.
	ConversationPath string `env:"AGT_CONVERSATION_PATH"`

	ProfilePath string `env:"AGT_PROFILE"`
	LogLevel    string `env:"AGT_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `env:"AGT_LOG_FORMAT" envDefault:"console" validate:"oneof=console json"`
	MetricsAddr string `env:"AGT_METRICS_ADDR"`

	// Set from the profile only.
	ProfileName string
	Identity    string
}

// DefaultConversationPath is used when AGT_CONVERSATION_PATH is unset.
const DefaultConversationPath = "conversation.json"

type Option func(*Config)

func WithModel(model string) Option {
	return func(c *Config) {
		if model != "" {
			c.Model = model
		}
	}
}

func WithMemoryBackend(backend string) Option {
	return func(c *Config) {
		if backend != "" {
			c.MemoryBackend = backend
		}
	}
}

func WithConversationPath(path string) Option { return func(c *Config) { c.ConversationPath = path } }

func WithTokenBudget(n int) Option { return func(c *Config) { c.TokenBudget = n } }

func WithLogLevel(level string) Option {
	return func(c *Config) {
		if level != "" {
			c.LogLevel = level
		}
	}
}

// WithProfile points at a profile file, replacing AGT_PROFILE.
func WithProfile(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.ProfilePath = path
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the environment, applies the profile and opts, and validates.
func Load(opts ...Option) (*Config, error) {
	cfg := &Config{ConversationPath: DefaultConversationPath}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	// An explicitly empty path disables saving, so presence matters here.
	if v, ok := os.LookupEnv("AGT_CONVERSATION_PATH"); ok {
		cfg.ConversationPath = strings.TrimSpace(v)
	}

	// Options run twice: first so a profile flag is seen, then to win over the profile.
	for _, o := range opts {
		o(cfg)
	}
	if cfg.ProfilePath != "" {
		p, err := LoadProfile(cfg.ProfilePath)
		if err != nil {
			return nil, err
		}
		p.apply(cfg)
		for _, o := range opts {
			o(cfg)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s (%s) fails %s %s", fe.Field(), envName(fe.StructField()), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func envName(field string) string {
	f, ok := reflect.TypeOf(Config{}).FieldByName(field)
	if !ok {
		return field
	}
	return f.Tag.Get("env")
}

// Limits returns the conversation limits configured.
func (c *Config) Limits() conversation.Limits {
	return conversation.Limits{
		MaxTokens:          c.MaxTokens,
		WarningThreshold:   c.WarningThreshold,
		SummarizeThreshold: c.SummarizeThreshold,
	}
}

// Profile is the YAML agent profile.
type Profile struct {
	Name               string  `yaml:"name"`
	Identity           string  `yaml:"identity"`
	Model              string  `yaml:"model"`
	MaxTokens          int     `yaml:"max_tokens"`
	WarningThreshold   float64 `yaml:"warning_threshold"`
	SummarizeThreshold float64 `yaml:"summarize_threshold"`
	KeepExchanges      int     `yaml:"keep_exchanges"`
}

// LoadProfile reads a profile. Unknown fields are rejected.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	var p Profile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}
	return &p, nil
}

// apply copies the fields the profile sets.
func (p *Profile) apply(c *Config) {
	c.ProfileName = p.Name
	c.Identity = strings.TrimSpace(p.Identity)
	if p.Model != "" {
		c.Model = p.Model
	}
	if p.MaxTokens != 0 {
		c.MaxTokens = p.MaxTokens
	}
	if p.WarningThreshold != 0 {
		c.WarningThreshold = p.WarningThreshold
	}
	if p.SummarizeThreshold != 0 {
		c.SummarizeThreshold = p.SummarizeThreshold
	}
	if p.KeepExchanges != 0 {
		c.KeepExchanges = p.KeepExchanges
	}
}
