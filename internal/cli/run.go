package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/chatrelay/internal/channel"
	"github.com/soyeahso/chatrelay/internal/channel/irc"
	"github.com/soyeahso/chatrelay/internal/channel/web"
	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/progress"
	"github.com/soyeahso/chatrelay/internal/routing"
	"github.com/soyeahso/chatrelay/internal/session"
	"github.com/soyeahso/chatrelay/internal/store"
	"github.com/soyeahso/chatrelay/internal/watchdog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	drainTimeout = 15 * time.Second
	hookTimeout  = 5 * time.Second
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect the configured channels and start relaying",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data dirs: %w", err)
			}

			hookMgr := hooks.NewManager(log)
			if n := hookMgr.RegisterCommands(cfg.Hooks); n > 0 {
				log.Info().Int("hooks", n).Msg("command hooks registered")
			}

			activity := watchdog.NewActivity()
			engine, err := buildEngine(cfg, hookMgr, session.WithActivity(activity))
			if err != nil {
				return err
			}

			channels := buildChannels(cfg, engine)
			if channels.Count() == 0 {
				return fmt.Errorf("no channels configured")
			}

			routerOpts := []routing.Option{routing.WithActivity(activity), routing.WithHooks(hookMgr)}
			var tracker *progress.Tracker
			if cfg.Progress.Enabled {
				dbPath := paths.ProgressDB(cfg.Progress)
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening progress database: %w", err)
				}
				defer db.Close()
				tracker = progress.NewTracker(store.NewProgressStore(db), cfg.Progress.XPPerMessage, hookMgr, log)
				routerOpts = append(routerOpts, routing.WithProgress(tracker))
				log.Info().Str("path", dbPath).Msg("progress tracking enabled")
			}

			router := routing.NewRouter(channels, engine, routing.RouterConfigFrom(cfg), log, routerOpts...)
			if tracker != nil {
				tracker.Subscribe(hookMgr, router.SendTo)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			router.Wire(ctx)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				// A channel that exits on its own ends the run.
				defer stop()
				return channels.Run(gctx)
			})
			if cfg.Watchdog.Enabled {
				wd := watchdog.New(watchdog.Config{
					Threshold: cfg.Watchdog.InactivityThreshold(),
					Interval:  cfg.Watchdog.PollingInterval(),
				}, activity, router.Announce, hookMgr, log)
				g.Go(func() error { return wd.Run(gctx) })
			}

			hookMgr.Emit(ctx, hooks.EventRelayStart, map[string]any{
				"channels": channels.List(),
				"model":    cfg.Backend.Model,
			})
			log.Info().
				Strs("channels", channels.List()).
				Str("backend", cfg.Backend.API).
				Str("model", cfg.Backend.Model).
				Str("target", cfg.Channels.Target.Channel+":"+cfg.Channels.Target.Chat).
				Msg("chatrelay running")

			runErr := g.Wait()

			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := channels.StopAll(stopCtx); err != nil {
				log.Warn().Err(err).Msg("channels did not stop cleanly")
			}
			if !router.Wait(drainTimeout) {
				log.Warn().Dur("timeout", drainTimeout).Msg("in-flight exchanges did not finish")
			}
			hookMgr.Emit(stopCtx, hooks.EventRelayStop, nil)
			if !hookMgr.Wait(hookTimeout) {
				log.Warn().Msg("hook commands still running at exit")
			}
			log.Info().Msg("chatrelay stopped")
			return runErr
		},
	}
}

func buildChannels(cfg config.Config, engine *session.Engine) *channel.Registry {
	channels := channel.NewRegistry(log)
	if cfg.Channels.IRC != nil {
		channels.Register(irc.New(*cfg.Channels.IRC, log))
	}
	if cfg.Channels.Web != nil {
		channels.Register(web.New(*cfg.Channels.Web, log,
			web.WithRoles(engine.Catalog().Names),
			web.WithMediaRoot(cfg.GIF.Folder),
		))
	}
	return channels
}
