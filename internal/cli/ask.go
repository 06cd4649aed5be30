package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/session"
	"github.com/spf13/cobra"
)

// askUser is the conversation key for one-off questions from the terminal.
const askUser = "cli"

func newAskCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "ask <text>",
		Short: "Send one message to the backend and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := buildEngine(cfg, hooks.NewManager(log))
			if err != nil {
				return err
			}
			if role != "" {
				if _, err := engine.SetRole(askUser, role); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			res, err := engine.HandleUserMessage(ctx, askUser, strings.Join(args, " "), session.Callbacks{
				OnChunk: func(text string) { fmt.Fprint(out, text) },
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if res.GIF != "" {
				fmt.Fprintf(out, "[gif: %s]\n", res.GIF)
			}
			log.Debug().Str("req", res.RequestID).Dur("duration", res.Duration).Msg("ask complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "persona to answer as (see `chatrelay roles`)")
	return cmd
}
