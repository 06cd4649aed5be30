package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validBase is Defaults plus the one required field.
func validBase() Config {
	cfg := Defaults()
	cfg.Backend.Model = "llama3"
	return cfg
}

func issuePaths(issues []ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Path
	}
	return out
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := validBase()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_ModelRequired(t *testing.T) {
	cfg := Defaults()
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "backend.model", issues[0].Path)
}

func TestValidate_NumericRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"zero context", func(c *Config) { c.Session.MaxContextLength = 0 }, "session.maxContextLength"},
		{"negative context", func(c *Config) { c.Session.MaxContextLength = -3 }, "session.maxContextLength"},
		{"gif chance above one", func(c *Config) { c.Session.GifChance = 1.5 }, "session.gifChance"},
		{"gif chance negative", func(c *Config) { c.Session.GifChance = -0.1 }, "session.gifChance"},
		{"empty default role", func(c *Config) { c.Session.DefaultRole = "" }, "session.defaultRole"},
		{"idle timeout", func(c *Config) { c.Backend.StreamIdleTimeoutSeconds = 0 }, "backend.streamIdleTimeoutSeconds"},
		{"request timeout", func(c *Config) { c.Backend.RequestTimeoutSeconds = -1 }, "backend.requestTimeoutSeconds"},
		{"threshold", func(c *Config) { c.Watchdog.InactivityThresholdHours = 0 }, "watchdog.inactivityThresholdHours"},
		{"polling", func(c *Config) { c.Watchdog.PollingIntervalSeconds = -5 }, "watchdog.pollingIntervalSeconds"},
		{"typing", func(c *Config) { c.Stream.TypingIntervalSeconds = 0 }, "stream.typingIntervalSeconds"},
		{"edit interval", func(c *Config) { c.Stream.EditIntervalMillis = 0 }, "stream.editIntervalMillis"},
		{"edit min chars", func(c *Config) { c.Stream.EditMinChars = -1 }, "stream.editMinChars"},
		{"max message", func(c *Config) { c.Stream.MaxMessageLength = 0 }, "stream.maxMessageLength"},
		{"xp", func(c *Config) { c.Progress.XPPerMessage = 0 }, "progress.xpPerMessage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.Len(t, issues, 1)
			assert.Equal(t, tt.path, issues[0].Path)
		})
	}
}

func TestValidate_GifChanceBounds(t *testing.T) {
	for _, p := range []float64{0, 0.02, 1} {
		cfg := validBase()
		cfg.Session.GifChance = p
		assert.Empty(t, Validate(&cfg), "gifChance %g should be valid", p)
	}
}

func TestValidate_DisabledProgressSkipsXP(t *testing.T) {
	cfg := validBase()
	cfg.Progress.Enabled = false
	cfg.Progress.XPPerMessage = 0
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_BackendAPI(t *testing.T) {
	for _, api := range []string{"ollama", "openai"} {
		cfg := validBase()
		cfg.Backend.API = api
		assert.Empty(t, Validate(&cfg), "api %q should be valid", api)
	}

	cfg := validBase()
	cfg.Backend.API = "claude"
	issues := Validate(&cfg)
	require.NotEmpty(t, issues)
	assert.Equal(t, "backend.api", issues[0].Path)
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validBase()
	cfg.Logging.Level = "verbose"
	issues := Validate(&cfg)
	require.NotEmpty(t, issues)
	assert.Equal(t, "logging.level", issues[0].Path)
}

func TestValidate_ValidLogLevels(t *testing.T) {
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace", ""} {
		cfg := validBase()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %q should be valid", level)
	}
}

func TestValidate_InvalidConsoleStyle(t *testing.T) {
	cfg := validBase()
	cfg.Logging.ConsoleStyle = "fancy"
	assert.Contains(t, issuePaths(Validate(&cfg)), "logging.consoleStyle")
}

func TestValidate_IRC(t *testing.T) {
	t.Run("missing server and nick", func(t *testing.T) {
		cfg := validBase()
		cfg.Channels.IRC = &IRCConfig{}
		cfg.Channels.Target = TargetConfig{Channel: "irc", Chat: "#general"}
		paths := issuePaths(Validate(&cfg))
		assert.Contains(t, paths, "channels.irc.server")
		assert.Contains(t, paths, "channels.irc.nick")
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := validBase()
		cfg.Channels.IRC = &IRCConfig{Server: "irc.example.com", Nick: "bot", Port: 70000}
		cfg.Channels.Target = TargetConfig{Channel: "irc", Chat: "#general"}
		assert.Equal(t, []string{"channels.irc.port"}, issuePaths(Validate(&cfg)))
	})

	t.Run("sasl without password", func(t *testing.T) {
		cfg := validBase()
		cfg.Channels.IRC = &IRCConfig{Server: "irc.example.com", Nick: "bot", SASL: true}
		cfg.Channels.Target = TargetConfig{Channel: "irc", Chat: "#general"}
		assert.Equal(t, []string{"channels.irc.sasl"}, issuePaths(Validate(&cfg)))
	})

	t.Run("valid", func(t *testing.T) {
		cfg := validBase()
		cfg.Channels.IRC = &IRCConfig{Server: "irc.example.com", Nick: "bot", Port: 6697, SASL: true, Password: "pw"}
		cfg.Channels.Target = TargetConfig{Channel: "irc", Chat: "#general"}
		assert.Empty(t, Validate(&cfg))
	})
}

func TestValidate_Target(t *testing.T) {
	t.Run("channel configured without target", func(t *testing.T) {
		cfg := validBase()
		cfg.Channels.Web = &WebConfig{Addr: ":8089"}
		assert.Equal(t, []string{"channels.target.channel"}, issuePaths(Validate(&cfg)))
	})

	t.Run("target names unconfigured channel", func(t *testing.T) {
		cfg := validBase()
		cfg.Channels.Target = TargetConfig{Channel: "irc", Chat: "#general"}
		assert.Equal(t, []string{"channels.target.channel"}, issuePaths(Validate(&cfg)))
	})

	t.Run("unknown channel", func(t *testing.T) {
		cfg := validBase()
		cfg.Channels.Target = TargetConfig{Channel: "discord", Chat: "123"}
		assert.Equal(t, []string{"channels.target.channel"}, issuePaths(Validate(&cfg)))
	})

	t.Run("missing chat", func(t *testing.T) {
		cfg := validBase()
		cfg.Channels.Web = &WebConfig{Addr: ":8089"}
		cfg.Channels.Target = TargetConfig{Channel: "web"}
		assert.Equal(t, []string{"channels.target.chat"}, issuePaths(Validate(&cfg)))
	})

	t.Run("web addr required", func(t *testing.T) {
		cfg := validBase()
		cfg.Channels.Web = &WebConfig{}
		cfg.Channels.Target = TargetConfig{Channel: "web", Chat: "lobby"}
		assert.Equal(t, []string{"channels.web.addr"}, issuePaths(Validate(&cfg)))
	})
}

func TestValidate_HookCommandRequired(t *testing.T) {
	cfg := validBase()
	cfg.Hooks = HooksConfig{"nudge_sent": {{Command: ""}}}
	assert.Equal(t, []string{"hooks.nudge_sent[0].command"}, issuePaths(Validate(&cfg)))
}

func TestValidate_MultipleIssues(t *testing.T) {
	cfg := Defaults()
	cfg.Session.MaxContextLength = 0
	cfg.Session.GifChance = 2
	cfg.Logging.Level = "loud"
	issues := Validate(&cfg)
	assert.Len(t, issues, 4)
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "session.gifChance", Message: "must be in [0,1], got 2"}
	assert.Equal(t, "session.gifChance: must be in [0,1], got 2", issue.String())
}
