// Package config loads querygenie settings from, in decreasing priority,
// command-line flags, environment variables (QUERYGENIE_* plus the plain
// DATABASE_URL, OPENAI_API_KEY and ANTHROPIC_API_KEY), a querygenie.yaml
// file and built-in defaults. A .env file is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"querygenie/internal/llm"
)

const (
	EnvPrefix             = "QUERYGENIE"
	DefaultConfigFileName = "querygenie"

	// ReferenceDateLayout is the layout of generation.reference_date
	ReferenceDateLayout = "2006-01-02"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Generation GenerationConfig `mapstructure:"generation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // empty to infer from dsn
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	MaxRows         int           `mapstructure:"max_rows"`
}

type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL   string        `mapstructure:"openai_base_url"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	OllamaEndpoint  string        `mapstructure:"ollama_endpoint"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Temperature     float64       `mapstructure:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type GenerationConfig struct {
	Quota          int           `mapstructure:"quota"`
	AttemptBudget  int           `mapstructure:"attempt_budget"`
	ReferenceDate  string        `mapstructure:"reference_date"`
	Dialect        string        `mapstructure:"dialect"` // empty to derive from the database
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	SummaryTimeout time.Duration `mapstructure:"summary_timeout"`
}

// Reference parses ReferenceDate.
func (g GenerationConfig) Reference() (time.Time, error) {
	return time.Parse(ReferenceDateLayout, g.ReferenceDate)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads configuration into a Config. cfgFile may be empty, in which
// case querygenie.yaml is searched for in the working directory and
// /etc/querygenie. A missing file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/querygenie/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional variable names, as found in a plain .env
	aliases := map[string]string{
		"database.dsn":          "DATABASE_URL",
		"llm.openai_api_key":    "OPENAI_API_KEY",
		"llm.anthropic_api_key": "ANTHROPIC_API_KEY",
	}
	for key, env := range aliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.query_timeout", 30*time.Second)
	v.SetDefault("database.max_rows", 1000)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.ollama_endpoint", "http://localhost:11434")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 1.0)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("generation.quota", 5)
	v.SetDefault("generation.attempt_budget", 15)
	v.SetDefault("generation.reference_date", "2006-12-31")
	v.SetDefault("generation.dialect", "")
	v.SetDefault("generation.session_timeout", 0)
	v.SetDefault("generation.summary_timeout", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required (set database.dsn, QUERYGENIE_DATABASE_DSN or DATABASE_URL)")
	}
	if c.Database.MaxRows < 0 {
		return fmt.Errorf("database.max_rows must not be negative")
	}

	switch llm.ProviderName(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAIAPIKey == "" && c.LLM.OpenAIBaseURL == "" {
			return fmt.Errorf("openai API key is required (set llm.openai_api_key or OPENAI_API_KEY)")
		}
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic API key is required (set llm.anthropic_api_key or ANTHROPIC_API_KEY)")
		}
	case "ollama":
		if c.LLM.OllamaEndpoint == "" {
			return fmt.Errorf("ollama endpoint is required (set llm.ollama_endpoint)")
		}
	default:
		return fmt.Errorf("unsupported llm.provider: %q (supported: openai, anthropic, ollama)", c.LLM.Provider)
	}

	if c.Generation.Quota < 1 {
		return fmt.Errorf("generation.quota must be at least 1, got %d", c.Generation.Quota)
	}
	if c.Generation.AttemptBudget < c.Generation.Quota {
		return fmt.Errorf("generation.attempt_budget (%d) must be at least generation.quota (%d)",
			c.Generation.AttemptBudget, c.Generation.Quota)
	}
	if _, err := c.Generation.Reference(); err != nil {
		return fmt.Errorf("invalid generation.reference_date %q (want YYYY-MM-DD): %w", c.Generation.ReferenceDate, err)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %q (must be json or console)", c.Logging.Format)
	}

	return nil
}
