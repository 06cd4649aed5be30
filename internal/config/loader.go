package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so passwords and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Backend.APIKey = expandEnvVars(cfg.Backend.APIKey)
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
	if cfg.Channels.Web != nil {
		cfg.Channels.Web.Token = expandEnvVars(cfg.Channels.Web.Token)
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return &ConfigError{Message: "failed to load " + f + ": " + err.Error()}
		}
	}
	return nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills sections that Defaults cannot seed because they are
// optional pointers. Scalar fields already start from Defaults, so a zero
// read from the file is kept for Validate to reject.
func applyDefaults(cfg *Config) {
	if cfg.Channels.Web != nil && cfg.Channels.Web.Addr == "" {
		cfg.Channels.Web.Addr = ":8089"
	}
}

// applyEnvOverrides reads the bot's environment variables and overrides
// config values. An unparseable number leaves the value alone and is
// recorded so Validate reports it.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OLLAMA_API_URL"); v != "" {
		cfg.Backend.Endpoint = v
	}
	if v := os.Getenv("OLLAMA_MODEL_NAME"); v != "" {
		cfg.Backend.Model = v
	}
	if v := os.Getenv("MAX_CONTEXT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxContextLength = n
		} else {
			cfg.envIssue("MAX_CONTEXT_LENGTH", "not an integer: %q", v)
		}
	}
	if v := os.Getenv("GIF_FOLDER"); v != "" {
		cfg.GIF.Folder = v
	}
	if v := os.Getenv("GIF_CHANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.GifChance = f
		} else {
			cfg.envIssue("GIF_CHANCE", "not a number: %q", v)
		}
	}
	if v := os.Getenv("SYSTEM_PROMPT"); v != "" {
		cfg.Personas.SystemPrompt = v
	}
	if v := os.Getenv("TARGET_CHANNEL_ID"); v != "" {
		cfg.Channels.Target.Chat = v
	}
	if v := os.Getenv("ALLOWED_USER_IDS"); v != "" {
		var users []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				users = append(users, u)
			}
		}
		cfg.Access.AllowedUsers = users
	}
	if v := os.Getenv("CHATRELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
