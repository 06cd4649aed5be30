// Package progress awards XP for chat activity and tracks levels and badges.
package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/soyeahso/chatrelay/internal/store"
)

// LeaderboardSize is how many users Leaderboard reports.
const LeaderboardSize = 10

// badgeMilestones maps a level to the badge unlocked on reaching it.
var badgeMilestones = map[int]string{
	2:  "Congrats, You Did Something 🥱",
	5:  "Tryhard in Training 🏋️‍♂️",
	10: "Still Here? Wow. 😏",
	20: "Professional Procrastinator 🕰️",
	30: "Overachiever Alert 🚨",
	50: "Touch Grass, Maybe? 🌱",
}

// XPForLevel is the total XP needed to reach level: linear up to 5,
// quadratic after.
func XPForLevel(level int) int {
	if level <= 5 {
		return 100 * level
	}
	return 100 * level * level
}

// Badge returns the badge unlocked at level, if any.
func Badge(level int) (string, bool) {
	b, ok := badgeMilestones[level]
	return b, ok
}

// Store persists progress. store.ProgressStore implements it.
type Store interface {
	Get(ctx context.Context, userID string) (store.UserProgress, error)
	Save(ctx context.Context, p store.UserProgress) error
	Top(ctx context.Context, n int) ([]store.UserProgress, error)
}

// Award is the outcome of one AddXP call.
type Award struct {
	Progress  store.UserProgress
	LeveledUp bool
	NewBadges []string
}

// Tracker applies the XP rules on top of a Store.
type Tracker struct {
	store Store
	xp    int
	log   *logging.Logger
	hooks *hooks.Manager
	now   func() time.Time

	// serializes read-modify-write per award
	mu sync.Mutex
}

// NewTracker creates a tracker awarding xpPerMessage for each message.
// hooksMgr may be nil.
func NewTracker(s Store, xpPerMessage int, hooksMgr *hooks.Manager, log *logging.Logger) *Tracker {
	return &Tracker{store: s, xp: xpPerMessage, hooks: hooksMgr, log: log.Sub("progress"), now: time.Now}
}

// AddXP awards one message's XP to userID, applying every level-up the new
// total reaches and unlocking milestone badges on the way.
func (t *Tracker) AddXP(ctx context.Context, userID, displayName string) (Award, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.store.Get(ctx, userID)
	if err != nil {
		return Award{}, err
	}
	if displayName != "" {
		p.DisplayName = displayName
	}
	p.XP += t.xp
	p.LastMessage = t.now()

	var a Award
	for p.XP >= XPForLevel(p.Level+1) {
		p.Level++
		a.LeveledUp = true
		if b, ok := Badge(p.Level); ok && !contains(p.Badges, b) {
			p.Badges = append(p.Badges, b)
			a.NewBadges = append(a.NewBadges, b)
		}
	}
	if err := t.store.Save(ctx, p); err != nil {
		return Award{}, err
	}
	a.Progress = p

	if a.LeveledUp {
		t.log.Info().Str("user", userID).Int("level", p.Level).Int("xp", p.XP).Msg("level up")
		if t.hooks != nil {
			t.hooks.Emit(ctx, hooks.EventLevelUp, map[string]any{
				"user":   userID,
				"level":  p.Level,
				"badges": a.NewBadges,
			})
		}
	}
	return a, nil
}

// Get returns the user's current standing.
func (t *Tracker) Get(ctx context.Context, userID string) (store.UserProgress, error) {
	return t.store.Get(ctx, userID)
}

// Leaderboard returns the top users by level, then XP.
func (t *Tracker) Leaderboard(ctx context.Context) ([]store.UserProgress, error) {
	return t.store.Top(ctx, LeaderboardSize)
}

// Announcer posts text into the chat a message came from.
type Announcer func(ctx context.Context, channelID, chatID, text string) error

// Subscribe awards XP on every message_received event and posts the
// resulting announcements back to the originating chat.
func (t *Tracker) Subscribe(m *hooks.Manager, announce Announcer) {
	m.On(hooks.EventMessageReceived, "progress", func(ctx context.Context, p hooks.Payload) error {
		userID, _ := p.Data["user"].(string)
		if userID == "" {
			return nil
		}
		name, _ := p.Data["name"].(string)
		channelID, _ := p.Data["channel"].(string)
		chatID, _ := p.Data["chat"].(string)

		a, err := t.AddXP(ctx, userID, name)
		if err != nil {
			return err
		}
		for _, text := range Announcements(mention(userID, name), a) {
			if err := announce(ctx, channelID, chatID, text); err != nil {
				return err
			}
		}
		return nil
	})
}

// Announcements renders the channel messages for an award.
func Announcements(who string, a Award) []string {
	var out []string
	if a.LeveledUp {
		out = append(out, fmt.Sprintf("🎉 %s leveled up to **Level %d**!", who, a.Progress.Level))
	}
	for _, b := range a.NewBadges {
		out = append(out, fmt.Sprintf("🏅 %s earned the **%s** badge!", who, b))
	}
	return out
}

// FormatLevel renders a /level reply.
func FormatLevel(who string, p store.UserProgress) string {
	return fmt.Sprintf("%s is **Level %d** with %d XP (%d XP to next level).",
		who, p.Level, p.XP, XPForLevel(p.Level+1)-p.XP)
}

// FormatBadges renders a /badges reply.
func FormatBadges(who string, p store.UserProgress) string {
	if len(p.Badges) == 0 {
		return fmt.Sprintf("%s has no badges yet. Keep talking!", who)
	}
	return fmt.Sprintf("%s's badges: %s", who, strings.Join(p.Badges, ", "))
}

// FormatLeaderboard renders a /leaderboard reply.
func FormatLeaderboard(top []store.UserProgress) string {
	if len(top) == 0 {
		return "The leaderboard is empty."
	}
	var b strings.Builder
	b.WriteString("🏆 Leaderboard")
	for i, p := range top {
		fmt.Fprintf(&b, "\n%d. %s: Level %d (%d XP)", i+1, mention(p.UserID, p.DisplayName), p.Level, p.XP)
	}
	return b.String()
}

func mention(userID, name string) string {
	if name != "" {
		return name
	}
	return userID
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
