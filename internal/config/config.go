// Package config holds the retail voice service configuration.
//
// Values are resolved in order: DefaultConfig, an optional YAML file,
// environment variables, then command-line flags applied by the caller.
// Libraries never read the environment themselves; they receive the
// fields they need from this struct.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default configuration values.
const (
	DefaultToolProviderEndpoint  = "http://mcp:4000"
	DefaultCatalogEndpoint       = "http://backend:3001"
	DefaultSpeechServiceEndpoint = "https://api.elevenlabs.io/v1"
	DefaultClassifierModel       = "gpt-4o-mini"
	DefaultPatienceThreshold     = 10
	DefaultHealthCheckTimeoutMs  = 5000
	DefaultListenAddr            = ":5000"
	DefaultSessionTTL            = 30 * time.Minute
	DefaultSessionSize           = 10000
)

// Classifier backends.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Speech-to-text backends.
const (
	STTElevenLabs = "elevenlabs"
	STTGoogle     = "google"
)

// Session backends.
const (
	SessionNone   = "none"
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config is the complete service configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	// ToolProviderEndpoint is the base URL of the MCP tool server (no /mcp suffix).
	ToolProviderEndpoint string `yaml:"tool_provider_endpoint"`
	// CatalogEndpoint is the REST catalog behind the tool server. Probed for
	// reporting only.
	CatalogEndpoint string `yaml:"catalog_endpoint"`

	SpeechServiceEndpoint string `yaml:"speech_service_endpoint"`
	ElevenLabsAPIKey      string `yaml:"elevenlabs_api_key"`
	ElevenLabsVoiceID     string `yaml:"elevenlabs_voice_id"`
	STTProvider           string `yaml:"stt_provider"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	SpeechLanguage        string `yaml:"speech_language"`

	ClassifierProvider  string `yaml:"classifier_provider"`
	ClassifierModelName string `yaml:"classifier_model_name"`
	// ClassifierFallback names a second backend tried when the first fails.
	ClassifierFallback string `yaml:"classifier_fallback"`
	OpenAIAPIKey       string `yaml:"openai_api_key"`
	OpenAIBaseURL      string `yaml:"openai_base_url"`
	AnthropicAPIKey    string `yaml:"anthropic_api_key"`
	AnthropicModel     string `yaml:"anthropic_model"`
	GeminiAPIKey       string `yaml:"gemini_api_key"`
	GeminiModel        string `yaml:"gemini_model"`

	PatienceThreshold    int `yaml:"patience_threshold"`
	HealthCheckTimeoutMs int `yaml:"health_check_timeout_ms"`

	SessionBackend string        `yaml:"session_backend"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	SessionSize    int           `yaml:"session_size"`
	RedisURL       string        `yaml:"redis_url"`

	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`

	// TracingEndpoint is an OTLP gRPC collector address. Empty disables tracing.
	TracingEndpoint string `yaml:"tracing_endpoint"`
	TracingInsecure bool   `yaml:"tracing_insecure"`

	// ValidateToolsOnStart checks the attribute key table against the tool server.
	ValidateToolsOnStart bool `yaml:"validate_tools_on_start"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:            DefaultListenAddr,
		LogLevel:              "info",
		ToolProviderEndpoint:  DefaultToolProviderEndpoint,
		CatalogEndpoint:       DefaultCatalogEndpoint,
		SpeechServiceEndpoint: DefaultSpeechServiceEndpoint,
		STTProvider:           STTElevenLabs,
		SpeechLanguage:        "en-US",
		ClassifierProvider:    ProviderOpenAI,
		ClassifierModelName:   DefaultClassifierModel,
		AnthropicModel:        "claude-3-5-haiku-latest",
		GeminiModel:           "gemini-2.0-flash",
		PatienceThreshold:     DefaultPatienceThreshold,
		HealthCheckTimeoutMs:  DefaultHealthCheckTimeoutMs,
		SessionBackend:        SessionMemory,
		SessionTTL:            DefaultSessionTTL,
		SessionSize:           DefaultSessionSize,
		BreakerFailures:       5,
		BreakerTimeout:        30 * time.Second,
		TracingInsecure:       true,
		ValidateToolsOnStart:  true,
	}
}

// Load returns DefaultConfig overlaid with the YAML file at path (if any)
// and then with environment variables.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.LoadEnv()
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	if err := k.UnmarshalWithConf("", c, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// LoadEnv applies environment overrides. Variable names match the ones the
// deployment already uses for the tool server and speech keys.
func (c *Config) LoadEnv() {
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.ToolProviderEndpoint, "MCP_SERVER_URL")
	setString(&c.CatalogEndpoint, "BACKEND_URL")
	setString(&c.SpeechServiceEndpoint, "ELEVENLABS_BASE_URL")
	setString(&c.ElevenLabsAPIKey, "ELEVENLABS_API_KEY")
	setString(&c.ElevenLabsVoiceID, "ELEVENLABS_VOICE_ID")
	setString(&c.STTProvider, "STT_PROVIDER")
	setString(&c.GoogleCredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.ClassifierProvider, "CLASSIFIER_PROVIDER")
	setString(&c.ClassifierModelName, "CLASSIFIER_MODEL")
	setString(&c.ClassifierFallback, "CLASSIFIER_FALLBACK")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.SessionBackend, "SESSION_BACKEND")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.TracingEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setInt(&c.PatienceThreshold, "PATIENCE_THRESHOLD")
	setInt(&c.HealthCheckTimeoutMs, "HEALTH_CHECK_TIMEOUT_MS")
	if v, ok := os.LookupEnv("SESSION_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.SessionTTL = d
		}
	}
}

// HealthCheckTimeout returns the per-probe timeout.
func (c *Config) HealthCheckTimeout() time.Duration {
	return time.Duration(c.HealthCheckTimeoutMs) * time.Millisecond
}

// Validate checks the configuration for values the service cannot start with.
// Missing speech credentials are not an error here: the health stage reports
// them per request.
func (c *Config) Validate() error {
	if err := validURL("ToolProviderEndpoint", c.ToolProviderEndpoint); err != nil {
		return err
	}
	if c.CatalogEndpoint != "" {
		if err := validURL("CatalogEndpoint", c.CatalogEndpoint); err != nil {
			return err
		}
	}
	if c.PatienceThreshold <= 0 {
		return &ConfigError{Field: "PatienceThreshold", Message: "patience threshold must be positive"}
	}
	if c.HealthCheckTimeoutMs <= 0 {
		return &ConfigError{Field: "HealthCheckTimeoutMs", Message: "health check timeout must be positive"}
	}
	if c.ClassifierModelName == "" {
		return &ConfigError{Field: "ClassifierModelName", Message: "classifier model name is required"}
	}
	for _, p := range []struct{ field, name string }{
		{"ClassifierProvider", c.ClassifierProvider},
		{"ClassifierFallback", c.ClassifierFallback},
	} {
		switch p.name {
		case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		case "":
			if p.field == "ClassifierProvider" {
				return &ConfigError{Field: p.field, Message: "classifier provider is required"}
			}
		default:
			return &ConfigError{Field: p.field, Message: fmt.Sprintf("unknown classifier provider %q", p.name)}
		}
	}
	switch c.STTProvider {
	case STTElevenLabs, STTGoogle:
	default:
		return &ConfigError{Field: "STTProvider", Message: fmt.Sprintf("unknown stt provider %q", c.STTProvider)}
	}
	switch c.SessionBackend {
	case SessionNone, SessionMemory:
	case SessionRedis:
		if c.RedisURL == "" {
			return &ConfigError{Field: "RedisURL", Message: "REDIS_URL is required for the redis session backend"}
		}
	default:
		return &ConfigError{Field: "SessionBackend", Message: fmt.Sprintf("unknown session backend %q", c.SessionBackend)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

func validURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Field: field, Message: fmt.Sprintf("invalid URL %q", raw)}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
