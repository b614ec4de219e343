// Package config loads codeshift settings from defaults, an optional YAML
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/codeshift/internal/llm"
	"github.com/valpere/codeshift/internal/pipeline"
)

const (
	EnvPrefix       = "CODESHIFT"
	DefaultProvider = "gemini"
	DefaultDBPath   = "./data/codeshift.db"
	DefaultTimeout  = 120 * time.Second
)

// Keys shared with flag binding in cmd.
const (
	KeyProvider      = "provider"
	KeyModel         = "model"
	KeyTemperature   = "temperature"
	KeyTimeout       = "timeout"
	KeySourceLang    = "source"
	KeyTargetLang    = "target"
	KeyGeminiAPIKey  = "gemini.api_key"
	KeyOllamaURL     = "ollama.base_url"
	KeyOpenRouterKey = "openrouter.api_key"
	KeyOpenRouterURL = "openrouter.base_url"
	KeyDBPath        = "db"
	KeyNoCache       = "no_cache"
	KeyConcurrency   = "concurrency"
)

type Config struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SourceLang  string        `mapstructure:"source"`
	TargetLang  string        `mapstructure:"target"`

	Gemini struct {
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"gemini"`

	Ollama struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"ollama"`

	OpenRouter struct {
		APIKey  string `mapstructure:"api_key"`
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"openrouter"`

	DBPath      string `mapstructure:"db"`
	NoCache     bool   `mapstructure:"no_cache"`
	Concurrency int    `mapstructure:"concurrency"`
}

// NewViper returns a viper instance with defaults and environment lookups
// registered. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyProvider, DefaultProvider)
	v.SetDefault(KeyModel, "")
	v.SetDefault(KeyTemperature, 0.0)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeySourceLang, pipeline.DefaultLanguages().Source)
	v.SetDefault(KeyTargetLang, pipeline.DefaultLanguages().Target)
	v.SetDefault(KeyGeminiAPIKey, "")
	v.SetDefault(KeyOllamaURL, llm.DefaultOllamaURL)
	v.SetDefault(KeyOpenRouterKey, "")
	v.SetDefault(KeyOpenRouterURL, llm.DefaultOpenRouterURL)
	v.SetDefault(KeyDBPath, DefaultDBPath)
	v.SetDefault(KeyNoCache, false)
	v.SetDefault(KeyConcurrency, 4)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys are also read under their conventional names.
	_ = v.BindEnv(KeyGeminiAPIKey, EnvPrefix+"_GEMINI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv(KeyOpenRouterKey, EnvPrefix+"_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")

	return v
}

// Load reads configFile when given, otherwise $HOME/.codeshift.yaml if it
// exists, and decodes the merged settings.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".codeshift")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	known := false
	for _, p := range llm.Providers {
		if p == provider {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown provider %q (want one of %s)", c.Provider, strings.Join(llm.Providers, ", "))
	}
	c.Provider = provider

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", c.Temperature)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if strings.TrimSpace(c.SourceLang) == "" || strings.TrimSpace(c.TargetLang) == "" {
		return errors.New("source and target languages are required")
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return nil
}

func (c *Config) Languages() pipeline.Languages {
	return pipeline.Languages{Source: c.SourceLang, Target: c.TargetLang}
}

// LLMConfig maps the provider section onto backend settings. An empty
// model leaves the backend default in place.
func (c *Config) LLMConfig() llm.Config {
	cfg := llm.Config{
		Model:       c.Model,
		Temperature: c.Temperature,
		Timeout:     c.Timeout,
	}
	switch c.Provider {
	case "ollama":
		cfg.BaseURL = c.Ollama.BaseURL
	case "openrouter":
		cfg.APIKey = c.OpenRouter.APIKey
		cfg.BaseURL = c.OpenRouter.BaseURL
	default:
		cfg.APIKey = c.Gemini.APIKey
	}
	return cfg
}

// ModelLabel identifies provider and model for the migration memory key.
func (c *Config) ModelLabel() string {
	model := c.Model
	if model == "" {
		switch c.Provider {
		case "ollama":
			model = llm.DefaultOllamaModel
		case "openrouter":
			model = llm.DefaultOpenRouterModel
		default:
			model = llm.DefaultGeminiModel
		}
	}
	return c.Provider + ":" + model
}

// EnsureDBDir creates the directory holding the database file.
func (c *Config) EnsureDBDir() error {
	dir := filepath.Dir(c.DBPath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
