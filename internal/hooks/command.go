package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/soyeahso/chatrelay/internal/config"
)

const defaultCommandTimeout = 5 * time.Second

// CommandHandler returns a Handler that runs entry.Command through sh with
// the payload as JSON on stdin and CHATRELAY_EVENT set in its environment.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := time.Duration(entry.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return func(ctx context.Context, p Payload) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "CHATRELAY_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook command %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook command %q: %w", entry.Command, err)
		}
		return nil
	}
}

// RegisterCommands registers every configured command hook as a
// background handler and returns how many were added. Unknown event names
// are logged and skipped.
func (m *Manager) RegisterCommands(cfg config.HooksConfig) int {
	known := make(map[string]bool, len(AllEvents))
	for _, e := range AllEvents {
		known[e] = true
	}

	events := make([]string, 0, len(cfg))
	for event := range cfg {
		events = append(events, event)
	}
	sort.Strings(events)

	n := 0
	for _, event := range events {
		if !known[event] {
			m.log.Warn().Str("event", event).Msg("ignoring hooks for unknown event")
			continue
		}
		for i, entry := range cfg[event] {
			m.OnAsync(event, fmt.Sprintf("command:%d", i), CommandHandler(entry))
			n++
		}
	}
	return n
}
