package config

import "fmt"

// Config is the root configuration for chatrelay.
type Config struct {
	Session  SessionConfig  `yaml:"session,omitempty"`
	Backend  BackendConfig  `yaml:"backend,omitempty"`
	Watchdog WatchdogConfig `yaml:"watchdog,omitempty"`
	Stream   StreamConfig   `yaml:"stream,omitempty"`
	GIF      GIFConfig      `yaml:"gif,omitempty"`
	Personas PersonasConfig `yaml:"personas,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Access   AccessConfig   `yaml:"access,omitempty"`
	Progress ProgressConfig `yaml:"progress,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`

	// env holds environment overrides that could not be applied.
	env []ValidationIssue
}

func (c *Config) envIssue(name, format string, args ...any) {
	c.env = append(c.env, ValidationIssue{Path: "env." + name, Message: fmt.Sprintf(format, args...)})
}

// SessionConfig controls per-user conversation state.
type SessionConfig struct {
	MaxContextLength int     `yaml:"maxContextLength,omitempty"` // bounded history size N
	DefaultRole      string  `yaml:"defaultRole,omitempty"`
	GifChance        float64 `yaml:"gifChance"` // probability in [0,1]; 0 is meaningful
}

// BackendConfig selects and configures the streaming chat backend.
type BackendConfig struct {
	API                      string `yaml:"api,omitempty"` // "ollama" | "openai"
	Endpoint                 string `yaml:"endpoint,omitempty"`
	Model                    string `yaml:"model,omitempty"`
	APIKey                   string `yaml:"apiKey,omitempty"`
	StreamIdleTimeoutSeconds int    `yaml:"streamIdleTimeoutSeconds,omitempty"`
	RequestTimeoutSeconds    int    `yaml:"requestTimeoutSeconds,omitempty"`
}

// WatchdogConfig controls the inactivity nudge loop.
type WatchdogConfig struct {
	Enabled                  bool    `yaml:"enabled"`
	InactivityThresholdHours float64 `yaml:"inactivityThresholdHours,omitempty"`
	PollingIntervalSeconds   int     `yaml:"pollingIntervalSeconds,omitempty"`
}

// StreamConfig controls how streamed replies are presented on a channel.
type StreamConfig struct {
	TypingIntervalSeconds int `yaml:"typingIntervalSeconds,omitempty"`
	EditIntervalMillis    int `yaml:"editIntervalMillis,omitempty"`
	EditMinChars          int `yaml:"editMinChars"`
	MaxMessageLength      int `yaml:"maxMessageLength,omitempty"`
}

// GIFConfig points at the folder of category subdirectories.
type GIFConfig struct {
	Folder string `yaml:"folder,omitempty"`
}

// PersonasConfig optionally adds or overrides personas from a YAML file.
type PersonasConfig struct {
	File         string `yaml:"file,omitempty"`
	SystemPrompt string `yaml:"systemPrompt,omitempty"` // replaces the default persona's prompt
}

// ChannelsConfig defines channel-specific configurations.
type ChannelsConfig struct {
	Target TargetConfig `yaml:"target,omitempty"`
	IRC    *IRCConfig   `yaml:"irc,omitempty"`
	Web    *WebConfig   `yaml:"web,omitempty"`
}

// TargetConfig names the one channel and chat the bot serves and nudges.
type TargetConfig struct {
	Channel string `yaml:"channel,omitempty"` // "irc" | "web"
	Chat    string `yaml:"chat,omitempty"`    // e.g. "#general"
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// WebConfig defines the websocket chat channel.
type WebConfig struct {
	Addr           string   `yaml:"addr,omitempty"`
	Token          string   `yaml:"token,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// AccessConfig restricts who the bot answers.
type AccessConfig struct {
	AllowedUsers []string `yaml:"allowedUsers,omitempty"` // empty = everyone
}

// ProgressConfig controls XP, levels and badges.
type ProgressConfig struct {
	Enabled      bool   `yaml:"enabled"`
	XPPerMessage int    `yaml:"xpPerMessage,omitempty"`
	DBPath       string `yaml:"dbPath,omitempty"` // defaults to <home>/data/chatrelay.db
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig maps lifecycle event names to shell commands.
type HooksConfig map[string][]HookEntry

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
