// Package watchdog nudges the target channel after a long quiet period.
package watchdog

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// SendFunc delivers a nudge to the target channel.
type SendFunc func(ctx context.Context, text string) error

// Config controls the watchdog.
type Config struct {
	Threshold time.Duration // quiet time before a nudge
	Interval  time.Duration // how often to check
}

// Watchdog periodically compares the channel's last activity against a
// threshold and sends one themed nudge when it is exceeded.
type Watchdog struct {
	cfg      Config
	activity *Activity
	send     SendFunc
	hooks    *hooks.Manager
	now      func() time.Time
	pick     func(n int) int
	log      *logging.Logger
}

// New creates a watchdog. hooksMgr may be nil.
func New(cfg Config, activity *Activity, send SendFunc, hooksMgr *hooks.Manager, log *logging.Logger) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Watchdog{
		cfg:      cfg,
		activity: activity,
		send:     send,
		hooks:    hooksMgr,
		now:      activity.now,
		pick:     rand.IntN,
		log:      log.Sub("watchdog"),
	}
}

// Tick runs one inactivity check. It reports whether a nudge was sent.
// The activity clock is reset only when the nudge was delivered.
func (w *Watchdog) Tick(ctx context.Context) (bool, error) {
	quiet := w.activity.Since()
	w.log.Debug().Dur("quiet", quiet).Msg("checking inactivity")
	if quiet < w.cfg.Threshold {
		return false, nil
	}

	text := w.nudgeText()
	if err := w.send(ctx, text); err != nil {
		w.log.Error().Err(err).Msg("failed to send nudge")
		return false, err
	}
	w.activity.Touch()

	w.log.Info().Dur("quiet", quiet).Str("text", text).Msg("sent inactivity nudge")
	if w.hooks != nil {
		w.hooks.Emit(ctx, hooks.EventNudgeSent, map[string]any{
			"text":  text,
			"quiet": quiet.String(),
		})
	}
	return true, nil
}

// Run ticks every interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info().
		Dur("threshold", w.cfg.Threshold).
		Dur("interval", w.cfg.Interval).
		Msg("watchdog started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("watchdog stopped")
			return nil
		case <-ticker.C:
			// Send errors are logged in Tick; the next tick retries.
			_, _ = w.Tick(ctx)
		}
	}
}

func (w *Watchdog) nudgeText() string {
	options := NudgeOptions(w.now().Hour())
	return options[w.pick(len(options))]
}

// NudgeOptions returns the themed nudge phrasings for an hour of the day.
func NudgeOptions(hour int) []string {
	switch {
	case hour >= 5 && hour < 12:
		return []string{"Good morning! Anyone around?", "Sun's up, time to chat!"}
	case hour >= 12 && hour < 17:
		return []string{"It's afternoon, say hi!", "Post-lunch silence... anyone awake?"}
	case hour >= 17 && hour < 22:
		return []string{"Evening vibes, let's talk!", "Who's here for some night chats?"}
	default:
		return []string{"Late night check-in...", "Night owls, say something!"}
	}
}
