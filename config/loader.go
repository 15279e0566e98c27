// Package config provides unified configuration loading with YAML files
// and environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("VAAHAI").
//	    Load()
//
// Precedence: defaults → YAML file → environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete framework configuration.
type Config struct {
	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Chat configures the group chat manager defaults.
	Chat ChatConfig `yaml:"chat" env:"CHAT"`

	// Bus configures the message bus.
	Bus BusConfig `yaml:"bus" env:"BUS"`

	// Store configures message persistence.
	Store StoreConfig `yaml:"store" env:"STORE"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap output sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the call site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stack traces on errors.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// ChatConfig configures group chat defaults.
type ChatConfig struct {
	// ChatType: round_robin, selector, broadcast, custom
	ChatType string `yaml:"chat_type" env:"CHAT_TYPE"`
	// HumanInputMode: always, never, terminate, feedback
	HumanInputMode string `yaml:"human_input_mode" env:"HUMAN_INPUT_MODE"`
	// MaxRounds bounds the number of agent turns.
	MaxRounds int `yaml:"max_rounds" env:"MAX_ROUNDS"`
	// AllowRepeatSpeaker lets agents speak more than once.
	AllowRepeatSpeaker bool `yaml:"allow_repeat_speaker" env:"ALLOW_REPEAT_SPEAKER"`
	// SpeakerSelectionMethod is passed through to the engine.
	SpeakerSelectionMethod string `yaml:"speaker_selection_method" env:"SPEAKER_SELECTION_METHOD"`
	// SendIntroductions opens the chat with agent introductions.
	SendIntroductions bool `yaml:"send_introductions" env:"SEND_INTRODUCTIONS"`
	// Offline selects the deterministic network-free backend.
	Offline bool `yaml:"offline" env:"OFFLINE"`
	// MaxMessages terminates the chat once the transcript reaches it.
	MaxMessages int `yaml:"max_messages" env:"MAX_MESSAGES"`
	// CompletionIndicators terminate on substring match in the last message.
	CompletionIndicators []string `yaml:"completion_indicators" env:"COMPLETION_INDICATORS"`
	// AgentCallTimeout bounds a single agent call. Zero disables it.
	AgentCallTimeout time.Duration `yaml:"agent_call_timeout" env:"AGENT_CALL_TIMEOUT"`
}

// BusConfig configures the message bus.
type BusConfig struct {
	// MetricsNamespace prefixes Prometheus metric names.
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
	// PersistMessages persists published messages to the store.
	PersistMessages bool `yaml:"persist_messages" env:"PERSIST_MESSAGES"`
}

// StoreConfig configures message persistence.
type StoreConfig struct {
	// Type: memory, file, redis
	Type string `yaml:"type" env:"TYPE"`
	// BaseDir is the file store root directory.
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// Redis connection settings.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// CleanupEnabled runs periodic retention cleanup.
	CleanupEnabled bool `yaml:"cleanup_enabled" env:"CLEANUP_ENABLED"`
	// CleanupInterval is the cleanup period.
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	// Retention is how long acknowledged messages are kept.
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// Loader loads configuration using a builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VAAHAI",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the configuration. Precedence: defaults → YAML file →
// environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile merges the YAML file into cfg. A missing file keeps the
// defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recursively overrides struct fields from environment
// variables named by the env tags.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices only.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []string

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}

	if c.Chat.MaxRounds <= 0 {
		errs = append(errs, "chat.max_rounds must be positive")
	}

	switch c.Store.Type {
	case "memory", "file", "redis":
	default:
		errs = append(errs, fmt.Sprintf("invalid store type %q", c.Store.Type))
	}
	if c.Store.Type == "file" && c.Store.BaseDir == "" {
		errs = append(errs, "store.base_dir is required for the file store")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
