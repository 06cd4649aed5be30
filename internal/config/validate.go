package config

import (
	"fmt"
	"slices"

	"github.com/soyeahso/chatrelay/internal/logging"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
// All issues are collected so a bad file can be fixed in one pass.
func Validate(cfg *Config) []ValidationIssue {
	issues := slices.Clone(cfg.env)
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Session validation
	if cfg.Session.MaxContextLength <= 0 {
		add("session.maxContextLength", "must be > 0, got %d", cfg.Session.MaxContextLength)
	}
	if cfg.Session.DefaultRole == "" {
		add("session.defaultRole", "is required")
	}
	if cfg.Session.GifChance < 0 || cfg.Session.GifChance > 1 {
		add("session.gifChance", "must be in [0,1], got %g", cfg.Session.GifChance)
	}

	// Backend validation
	validAPIs := []string{"ollama", "openai"}
	if !slices.Contains(validAPIs, cfg.Backend.API) {
		add("backend.api", "must be one of %v, got %q", validAPIs, cfg.Backend.API)
	}
	if cfg.Backend.Model == "" {
		add("backend.model", "is required (or set OLLAMA_MODEL_NAME)")
	}
	if cfg.Backend.StreamIdleTimeoutSeconds <= 0 {
		add("backend.streamIdleTimeoutSeconds", "must be > 0, got %d", cfg.Backend.StreamIdleTimeoutSeconds)
	}
	if cfg.Backend.RequestTimeoutSeconds < 0 {
		add("backend.requestTimeoutSeconds", "must be >= 0, got %d", cfg.Backend.RequestTimeoutSeconds)
	}

	// Watchdog validation
	if cfg.Watchdog.InactivityThresholdHours <= 0 {
		add("watchdog.inactivityThresholdHours", "must be > 0, got %g", cfg.Watchdog.InactivityThresholdHours)
	}
	if cfg.Watchdog.PollingIntervalSeconds <= 0 {
		add("watchdog.pollingIntervalSeconds", "must be > 0, got %d", cfg.Watchdog.PollingIntervalSeconds)
	}

	// Stream validation
	if cfg.Stream.TypingIntervalSeconds <= 0 {
		add("stream.typingIntervalSeconds", "must be > 0, got %d", cfg.Stream.TypingIntervalSeconds)
	}
	if cfg.Stream.EditIntervalMillis <= 0 {
		add("stream.editIntervalMillis", "must be > 0, got %d", cfg.Stream.EditIntervalMillis)
	}
	if cfg.Stream.EditMinChars < 0 {
		add("stream.editMinChars", "must be >= 0, got %d", cfg.Stream.EditMinChars)
	}
	if cfg.Stream.MaxMessageLength <= 0 {
		add("stream.maxMessageLength", "must be > 0, got %d", cfg.Stream.MaxMessageLength)
	}

	if cfg.Progress.Enabled && cfg.Progress.XPPerMessage <= 0 {
		add("progress.xpPerMessage", "must be > 0, got %d", cfg.Progress.XPPerMessage)
	}

	// Logging validation
	if _, ok := logging.ParseLevel(cfg.Logging.Level); cfg.Logging.Level != "" && !ok {
		add("logging.level", "must be one of %v, got %q", logging.Levels, cfg.Logging.Level)
	}
	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// IRC validation (only if configured)
	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			add("channels.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("channels.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("channels.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("channels.irc.sasl", "SASL requires a password to be set")
		}
	}

	if web := cfg.Channels.Web; web != nil && web.Addr == "" {
		add("channels.web.addr", "addr is required")
	}

	// Target validation: the named channel must be configured.
	switch cfg.Channels.Target.Channel {
	case "":
		if cfg.Channels.IRC != nil || cfg.Channels.Web != nil {
			add("channels.target.channel", "is required when a channel is configured")
		}
	case "irc":
		if cfg.Channels.IRC == nil {
			add("channels.target.channel", "irc is not configured")
		}
	case "web":
		if cfg.Channels.Web == nil {
			add("channels.target.channel", "web is not configured")
		}
	default:
		add("channels.target.channel", "must be one of [irc web], got %q", cfg.Channels.Target.Channel)
	}
	if cfg.Channels.Target.Channel != "" && cfg.Channels.Target.Chat == "" {
		add("channels.target.chat", "is required (or set TARGET_CHANNEL_ID)")
	}

	for event, entries := range cfg.Hooks {
		for i, e := range entries {
			if e.Command == "" {
				add(fmt.Sprintf("hooks.%s[%d].command", event, i), "command is required")
			}
		}
	}

	return issues
}
