package cli

import (
	"fmt"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/gif"
	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/soyeahso/chatrelay/internal/persona"
	"github.com/soyeahso/chatrelay/internal/relay"
	"github.com/soyeahso/chatrelay/internal/session"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatrelay",
		Short: "chatrelay relays chat channels to a streaming language model",
		Long: "chatrelay answers messages from IRC or a websocket chat with a language model backend,\n" +
			"keeping per-user conversation history and a choice of personas.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.chatrelay/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newRolesCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads the config file, switches the logger to the configured
// level unless --log-level was given, and fails on any validation issue.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if logLevel == "" {
		log = logging.New(logging.Writer(cfg.Logging.ConsoleStyle), cfg.Logging.Level)
	}

	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

func loadCatalog(cfg config.Config) (*persona.Catalog, error) {
	return persona.Load(persona.Options{
		File:         cfg.Personas.File,
		DefaultName:  cfg.Session.DefaultRole,
		SystemPrompt: cfg.Personas.SystemPrompt,
	})
}

// buildEngine assembles the persona catalog, the backend relay and the GIF
// picker into a session engine.
func buildEngine(cfg config.Config, hookMgr *hooks.Manager, opts ...session.Option) (*session.Engine, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("personas: %w", err)
	}

	backends := llm.NewRegistryFromConfig(cfg.Backend, log)
	client, err := backends.Resolve(cfg.Backend.API)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	rel := relay.New(client, relay.Config{
		Model:          cfg.Backend.Model,
		TypingInterval: cfg.Stream.TypingInterval(),
		IdleTimeout:    cfg.Backend.StreamIdleTimeout(),
	}, log)

	var gifs session.GIFSource
	if cfg.GIF.Folder != "" {
		gifs = gif.NewPicker(cfg.GIF.Folder)
	}

	opts = append(opts, session.WithHooks(hookMgr))
	return session.NewEngine(session.Config{
		MaxContextLength: cfg.Session.MaxContextLength,
		GifChance:        cfg.Session.GifChance,
	}, catalog, rel, gifs, log, opts...), nil
}
