package routing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/gif"
	"github.com/soyeahso/chatrelay/internal/progress"
	"github.com/soyeahso/chatrelay/internal/session"
)

// Command is a parsed chat command such as "/setrole pirate".
type Command struct {
	Name string // lower-cased, without prefix
	Arg  string
}

var commandNames = map[string]bool{
	"clear":       true,
	"reset":       true,
	"listroles":   true,
	"setrole":     true,
	"gif":         true,
	"level":       true,
	"badges":      true,
	"leaderboard": true,
}

// ParseCommand recognizes "/" or "!" commands. Unknown commands are not
// commands at all and go to the backend as chat.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || (text[0] != '/' && text[0] != '!') {
		return Command{}, false
	}
	name, arg, _ := strings.Cut(text[1:], " ")
	name = strings.ToLower(name)
	if !commandNames[name] {
		return Command{}, false
	}
	return Command{Name: name, Arg: strings.TrimSpace(arg)}, true
}

func (r *Router) runCommand(ctx context.Context, ch domain.Channel, msg domain.InboundMessage, cmd Command) {
	user := UserKey(msg)
	say := func(body string) { r.reply(ctx, ch, msg, body) }

	switch cmd.Name {
	case "clear", "reset":
		if r.engine.ClearHistory(user) {
			say("Conversation history cleared.")
		} else {
			say("No conversation history to clear.")
		}

	case "listroles":
		var b strings.Builder
		b.WriteString("**Available Roles:**")
		for _, name := range r.engine.Catalog().Names() {
			fmt.Fprintf(&b, "\n- `%s`", name)
		}
		b.WriteString("\nUse `/setrole <role_name>` to choose one.")
		say(b.String())

	case "setrole":
		if cmd.Arg == "" {
			say("Please specify a role name after the command. Usage: `/setrole <role_name>`")
			return
		}
		p, err := r.engine.SetRole(user, cmd.Arg)
		if errors.Is(err, session.ErrUnknownRole) {
			say(fmt.Sprintf("Sorry, '%s' is not a valid role. Use `/listroles` to see available roles.", strings.ToLower(cmd.Arg)))
			return
		}
		say(fmt.Sprintf("Okay, I'll act as a `%s` for you now.", p.Name))

	case "gif":
		r.gifCommand(ctx, ch, msg, strings.ToLower(cmd.Arg))

	case "level", "badges", "leaderboard":
		r.progressCommand(ctx, msg, cmd.Name, say)
	}
}

func (r *Router) gifCommand(ctx context.Context, ch domain.Channel, msg domain.InboundMessage, arg string) {
	user := UserKey(msg)
	switch arg {
	case "on":
		r.engine.SetGifPreference(user, true)
		r.reply(ctx, ch, msg, "GIFs enabled for your conversations!")
	case "off":
		r.engine.SetGifPreference(user, false)
		r.reply(ctx, ch, msg, "GIFs disabled for your conversations!")
	case "":
		path, err := r.engine.PickRandomGif("")
		if errors.Is(err, gif.ErrNotFound) {
			r.log.Debug().Err(err).Msg("no gif to send")
			r.reply(ctx, ch, msg, "No GIFs found.")
			return
		}
		if err != nil {
			r.log.Error().Err(err).Msg("gif lookup failed")
			r.reply(ctx, ch, msg, "Couldn't load a GIF right now.")
			return
		}
		category := filepath.Base(filepath.Dir(path))
		r.sendGIF(ctx, ch, msg, path, fmt.Sprintf("Here's a random %s GIF:", category))
	default:
		r.reply(ctx, ch, msg, "Usage: `/gif`, `/gif on` or `/gif off`")
	}
}

func (r *Router) progressCommand(ctx context.Context, msg domain.InboundMessage, name string, say func(string)) {
	if r.tracker == nil {
		say("Progress tracking is disabled.")
		return
	}

	if name == "leaderboard" {
		top, err := r.tracker.Leaderboard(ctx)
		if err != nil {
			r.log.Error().Err(err).Msg("leaderboard query failed")
			say("Couldn't load the leaderboard right now.")
			return
		}
		say(progress.FormatLeaderboard(top))
		return
	}

	p, err := r.tracker.Get(ctx, UserKey(msg))
	if err != nil {
		r.log.Error().Err(err).Str("from", msg.From).Msg("progress lookup failed")
		say("Couldn't load your progress right now.")
		return
	}
	if name == "level" {
		say(progress.FormatLevel(displayName(msg), p))
	} else {
		say(progress.FormatBadges(displayName(msg), p))
	}
}
