package cli

import (
	"fmt"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and check the configuration",
	}

	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and report every issue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			issues := config.Validate(&cfg)
			for _, issue := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", issue)
			}
			if len(issues) > 0 {
				return fmt.Errorf("config has %d issue(s)", len(issues))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config OK")
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(redact(cfg))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

const redacted = "***"

// redact blanks credentials. Channel configs are copied so the caller's
// pointers are left untouched.
func redact(cfg config.Config) config.Config {
	if cfg.Backend.APIKey != "" {
		cfg.Backend.APIKey = redacted
	}
	if cfg.Channels.IRC != nil && cfg.Channels.IRC.Password != "" {
		irc := *cfg.Channels.IRC
		irc.Password = redacted
		cfg.Channels.IRC = &irc
	}
	if cfg.Channels.Web != nil && cfg.Channels.Web.Token != "" {
		web := *cfg.Channels.Web
		web.Token = redacted
		cfg.Channels.Web = &web
	}
	return cfg
}
