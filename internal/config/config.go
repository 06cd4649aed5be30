package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Session: SessionConfig{
			MaxContextLength: 10,
			DefaultRole:      "sarcastic_therapist",
			GifChance:        0.02,
		},
		Backend: BackendConfig{
			API:                      "ollama",
			Endpoint:                 "http://localhost:11434",
			StreamIdleTimeoutSeconds: 60,
			RequestTimeoutSeconds:    120,
		},
		Watchdog: WatchdogConfig{
			Enabled:                  true,
			InactivityThresholdHours: 2,
			PollingIntervalSeconds:   3600,
		},
		Stream: StreamConfig{
			TypingIntervalSeconds: 8,
			EditIntervalMillis:    1200,
			EditMinChars:          40,
			MaxMessageLength:      2000,
		},
		GIF: GIFConfig{
			Folder: "gifs",
		},
		Progress: ProgressConfig{
			Enabled:      true,
			XPPerMessage: 10,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// StreamIdleTimeout returns the backend stall limit as a duration.
func (b BackendConfig) StreamIdleTimeout() time.Duration {
	return time.Duration(b.StreamIdleTimeoutSeconds) * time.Second
}

// InactivityThreshold returns the nudge threshold as a duration.
func (w WatchdogConfig) InactivityThreshold() time.Duration {
	return time.Duration(w.InactivityThresholdHours * float64(time.Hour))
}

// PollingInterval returns the watchdog tick interval as a duration.
func (w WatchdogConfig) PollingInterval() time.Duration {
	return time.Duration(w.PollingIntervalSeconds) * time.Second
}

// TypingInterval returns how often the typing indicator is refreshed.
func (s StreamConfig) TypingInterval() time.Duration {
	return time.Duration(s.TypingIntervalSeconds) * time.Second
}

// EditInterval returns the minimum gap between message edits.
func (s StreamConfig) EditInterval() time.Duration {
	return time.Duration(s.EditIntervalMillis) * time.Millisecond
}
