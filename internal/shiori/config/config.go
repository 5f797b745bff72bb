// Package config loads the engine configuration from the environment and an
// optional YAML engine file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bdobrica/Shiori/common/environment"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGenAI  = "genai"
	ProviderNoop   = "noop"
)

// LLM configures the chat completion backend.
type LLM struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// Embedding configures the embedding backend.
type Embedding struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// Matrix configures the optional chat gateway. The gateway is enabled when
// Homeserver is set.
type Matrix struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// Enabled reports whether the gateway should run.
func (m Matrix) Enabled() bool { return m.Homeserver != "" }

// Config is the full engine configuration.
type Config struct {
	DBPath   string
	HTTPAddr string
	APIKey   string
	DocsRoot string

	LLM       LLM
	Embedding Embedding
	Matrix    Matrix

	// HistoryCap physically caps stored history; 0 keeps everything.
	HistoryCap        int
	CompressThreshold int
	TurnLogTTL        time.Duration
	KVPurgeInterval   time.Duration
	// TurnRateLimit is turns per user per minute; 0 disables the limiter.
	TurnRateLimit int

	LogLevel  string
	LogFormat string

	// EngineFile is the path of the YAML engine file, empty when unset.
	EngineFile string
	Engine     Engine
}

// Load reads the environment, then the engine file named by
// SHIORI_CONFIG_FILE when set, and validates the result.
func Load() (*Config, error) {
	c := &Config{
		DBPath:   environment.StringOr("SHIORI_DB_PATH", "./shiori.db"),
		HTTPAddr: environment.StringOr("SHIORI_HTTP_ADDR", ":8080"),
		APIKey:   os.Getenv("SHIORI_API_KEY"),
		DocsRoot: environment.StringOr("DOCS_ROOT", "./documents"),

		LLM: LLM{
			Provider:  strings.ToLower(environment.StringOr("LLM_PROVIDER", ProviderOpenAI)),
			APIKey:    os.Getenv("LLM_API_KEY"),
			BaseURL:   os.Getenv("LLM_BASE_URL"),
			Model:     os.Getenv("LLM_MODEL"),
			MaxTokens: environment.IntOr("LLM_MAX_TOKENS", 1024),
			Timeout:   environment.DurationOr("LLM_TIMEOUT", 60*time.Second),
		},
		Embedding: Embedding{
			Provider: strings.ToLower(environment.StringOr("EMBEDDING_PROVIDER", ProviderOpenAI)),
			APIKey:   environment.FirstOf("EMBEDDING_API_KEY", "LLM_API_KEY"),
			BaseURL:  environment.FirstOf("EMBEDDING_BASE_URL", "LLM_BASE_URL"),
			Model:    os.Getenv("EMBEDDING_MODEL"),
		},
		Matrix: Matrix{
			Homeserver:  os.Getenv("MATRIX_HOMESERVER"),
			UserID:      os.Getenv("MATRIX_USER_ID"),
			AccessToken: os.Getenv("MATRIX_ACCESS_TOKEN"),
		},

		HistoryCap:        environment.IntOr("MEMORY_HISTORY_CAP", 0),
		CompressThreshold: environment.IntOr("MEMORY_COMPRESS_THRESHOLD", 10),
		TurnLogTTL:        environment.DurationOr("TURN_LOG_TTL", 7*24*time.Hour),
		KVPurgeInterval:   environment.DurationOr("KV_PURGE_INTERVAL", 10*time.Minute),
		TurnRateLimit:     environment.IntOr("TURN_RATE_LIMIT", 0),

		LogLevel:  environment.StringOr("LOG_LEVEL", "info"),
		LogFormat: environment.StringOr("LOG_FORMAT", "text"),

		EngineFile: os.Getenv("SHIORI_CONFIG_FILE"),
		Engine:     DefaultEngine(),
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		t := environment.Float64Or("LLM_TEMPERATURE", -1)
		if t < 0 || t > 2 {
			return nil, fmt.Errorf("%w: LLM_TEMPERATURE %q must be a number in [0, 2]", ErrInvalid, v)
		}
		c.LLM.Temperature = &t
	}

	if c.EngineFile != "" {
		e, err := LoadEngine(c.EngineFile)
		if err != nil {
			return nil, err
		}
		c.Engine = e
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks provider names, credentials and numeric bounds.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
			bad("LLM_API_KEY is required for the public OpenAI endpoint")
		}
	case ProviderGenAI:
		if c.LLM.APIKey == "" {
			bad("LLM_API_KEY is required for the genai provider")
		}
	default:
		bad("LLM_PROVIDER %q is not one of openai, genai", c.LLM.Provider)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" && c.Embedding.BaseURL == "" {
			bad("EMBEDDING_API_KEY is required for the public OpenAI endpoint")
		}
	case ProviderGenAI:
		if c.Embedding.APIKey == "" {
			bad("EMBEDDING_API_KEY is required for the genai provider")
		}
	case ProviderNoop:
	default:
		bad("EMBEDDING_PROVIDER %q is not one of openai, genai, noop", c.Embedding.Provider)
	}

	if c.Matrix.Enabled() && (c.Matrix.UserID == "" || c.Matrix.AccessToken == "") {
		bad("MATRIX_USER_ID and MATRIX_ACCESS_TOKEN are required with MATRIX_HOMESERVER")
	}
	if c.DBPath == "" {
		bad("SHIORI_DB_PATH must not be empty")
	}
	for name, v := range map[string]int{
		"MEMORY_HISTORY_CAP":        c.HistoryCap,
		"MEMORY_COMPRESS_THRESHOLD": c.CompressThreshold,
		"TURN_RATE_LIMIT":           c.TurnRateLimit,
		"LLM_MAX_TOKENS":            c.LLM.MaxTokens,
	} {
		if v < 0 {
			bad("%s must not be negative", name)
		}
	}
	if _, err := c.Engine.Lexicon.Compile(); err != nil {
		bad("lexicon: %v", err)
	}
	return errors.Join(errs...)
}
