// Package config – config.go defines all configuration structures for the
// life assistant service.
package config

// Config holds all assistant configuration.
type Config struct {
	// Name is the assistant name shown in responses.
	Name string `yaml:"name"`

	// Model is the completion model to use (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// TriageModel is the cheap/fast model used for intent classification.
	// Falls back to Model when empty.
	TriageModel string `yaml:"triage_model"`

	// API configures the completion provider endpoint.
	API APIConfig `yaml:"api"`

	// Timezone is the default user timezone (e.g. "America/Sao_Paulo").
	Timezone string `yaml:"timezone"`

	// Language is the preferred response language (e.g. "pt-BR").
	Language string `yaml:"language"`

	// Server configures the HTTP surface.
	Server ServerConfig `yaml:"server"`

	// Database configures the SQLite store.
	Database DatabaseConfig `yaml:"database"`

	// Security configures input guardrails.
	Security SecurityConfig `yaml:"security"`

	// Confirmation configures write-tool confirmation behavior.
	Confirmation ConfirmationConfig `yaml:"confirmation"`

	// Consolidation configures the nightly memory consolidation job.
	Consolidation ConsolidationConfig `yaml:"consolidation"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the completion provider.
type APIConfig struct {
	// BaseURL is the OpenAI-compatible endpoint base URL.
	BaseURL string `yaml:"base_url"`

	// APIKey is the provider API key. Prefer the vault, OS keyring, or
	// LIFE_API_KEY over putting the key here in plaintext.
	APIKey string `yaml:"api_key"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string `yaml:"addr"`

	// ServiceToken is the bearer token required on API requests.
	// Empty disables auth (local development only).
	ServiceToken string `yaml:"service_token"`
}

// DatabaseConfig configures persistence.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path"`
}

// SecurityConfig configures input guardrails.
type SecurityConfig struct {
	// MaxInputLength is the max chat message size in characters.
	MaxInputLength int `yaml:"max_input_length"`
}

// ConfirmationConfig configures write-tool confirmation.
type ConfirmationConfig struct {
	// TTLHours is the soft expiry of a pending confirmation, in hours.
	TTLHours int `yaml:"ttl_hours"`
}

// ConsolidationConfig configures the memory consolidation job.
type ConsolidationConfig struct {
	// Enabled turns the scheduled job on/off. Manual triggers still work.
	Enabled bool `yaml:"enabled"`

	// LocalTime is the local wall-clock time the job fires per timezone
	// group, in HH:MM.
	LocalTime string `yaml:"local_time"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default assistant configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "Assistant",
		Model:    "gpt-4o-mini",
		Timezone: "America/Sao_Paulo",
		Language: "pt-BR",
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path: "./data/assistant.db",
		},
		Security: SecurityConfig{
			MaxInputLength: 4096,
		},
		Confirmation: ConfirmationConfig{
			TTLHours: 24,
		},
		Consolidation: ConsolidationConfig{
			Enabled:   true,
			LocalTime: "03:00",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
