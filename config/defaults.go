package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Chat:      DefaultChatConfig(),
		Bus:       DefaultBusConfig(),
		Store:     DefaultStoreConfig(),
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
// Telemetry is off unless explicitly enabled.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "vaahai",
		SampleRate:   1.0,
	}
}

// DefaultChatConfig returns the default group chat configuration.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		ChatType:               "round_robin",
		HumanInputMode:         "terminate",
		MaxRounds:              10,
		AllowRepeatSpeaker:     true,
		SpeakerSelectionMethod: "auto",
	}
}

// DefaultBusConfig returns the default bus configuration.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		MetricsNamespace: "vaahai",
	}
}

// DefaultStoreConfig returns the default persistence configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:            "memory",
		Redis:           DefaultRedisConfig(),
		CleanupInterval: time.Hour,
		Retention:       time.Hour,
	}
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "vaahai:",
	}
}
