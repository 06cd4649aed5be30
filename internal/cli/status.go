package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show chatrelay paths and a configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.Info())

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config file not found, showing defaults.")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}
			printStatus(out, cfg)
			return nil
		},
	}
}

func printStatus(out io.Writer, cfg config.Config) {
	fmt.Fprintf(out, "Backend:  api=%s endpoint=%s model=%s\n", cfg.Backend.API, cfg.Backend.Endpoint, orNone(cfg.Backend.Model))
	fmt.Fprintf(out, "Session:  history=%d role=%s gifChance=%.2f\n",
		cfg.Session.MaxContextLength, cfg.Session.DefaultRole, cfg.Session.GifChance)

	if irc := cfg.Channels.IRC; irc != nil {
		fmt.Fprintf(out, "IRC:      server=%s nick=%s channels=%s tls=%v\n",
			irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
	} else {
		fmt.Fprintln(out, "IRC:      (not configured)")
	}
	if w := cfg.Channels.Web; w != nil {
		fmt.Fprintf(out, "Web:      addr=%s auth=%v\n", w.Addr, w.Token != "")
	} else {
		fmt.Fprintln(out, "Web:      (not configured)")
	}
	fmt.Fprintf(out, "Target:   %s %s\n", orNone(cfg.Channels.Target.Channel), cfg.Channels.Target.Chat)

	if cfg.Watchdog.Enabled {
		fmt.Fprintf(out, "Watchdog: after %s, checked every %s\n",
			cfg.Watchdog.InactivityThreshold(), cfg.Watchdog.PollingInterval())
	} else {
		fmt.Fprintln(out, "Watchdog: disabled")
	}
	if cfg.Progress.Enabled {
		fmt.Fprintf(out, "Progress: %d XP per message, db=%s\n", cfg.Progress.XPPerMessage, paths.ProgressDB(cfg.Progress))
	} else {
		fmt.Fprintln(out, "Progress: disabled")
	}

	if issues := config.Validate(&cfg); len(issues) > 0 {
		fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
