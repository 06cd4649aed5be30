package routing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEditStreamer(ch *mockChannel, cfg EditStreamerConfig) *EditStreamer {
	ch.edit = true
	return NewEditStreamer(context.Background(), cfg, ch, "#test", "m1", testLogger())
}

func TestEditStreamer_FirstDeltaPosts(t *testing.T) {
	ch := &mockChannel{id: "web"}
	e := newEditStreamer(ch, EditStreamerConfig{Interval: time.Hour, MinChars: 10})

	e.OnDelta("Hi")
	require.Len(t, ch.messages(), 1)
	assert.Equal(t, "Hi", ch.messages()[0].Body)
	assert.Equal(t, "m1", ch.messages()[0].ReplyToID)
	assert.True(t, e.Sent())
}

func TestEditStreamer_EditsRespectMinChars(t *testing.T) {
	ch := &mockChannel{id: "web"}
	e := newEditStreamer(ch, EditStreamerConfig{Interval: time.Millisecond, MinChars: 10})

	e.OnDelta("Hello")
	time.Sleep(5 * time.Millisecond)
	e.OnDelta(" there") // 6 new chars, below MinChars
	assert.Empty(t, ch.edits)

	time.Sleep(5 * time.Millisecond)
	e.OnDelta(", general Kenobi") // now well past MinChars
	assert.Equal(t, []string{"Hello there, general Kenobi"}, ch.edits)
}

func TestEditStreamer_EditsAreRateLimited(t *testing.T) {
	ch := &mockChannel{id: "web"}
	e := newEditStreamer(ch, EditStreamerConfig{Interval: time.Hour, MinChars: 1})

	e.OnDelta("a")
	for range 10 {
		e.OnDelta(" more")
	}
	assert.Empty(t, ch.edits, "no edit within the interval")
	assert.Len(t, ch.messages(), 1)
}

func TestEditStreamer_FinishAlwaysFlushes(t *testing.T) {
	ch := &mockChannel{id: "web"}
	e := newEditStreamer(ch, EditStreamerConfig{Interval: 20 * time.Millisecond, MinChars: 100})

	e.OnDelta("Assistant: partial")
	e.OnDelta(" answer")
	e.Finish("partial answer")

	assert.Equal(t, []string{"partial answer"}, ch.final())
}

func TestEditStreamer_FinishWithoutDeltasPosts(t *testing.T) {
	ch := &mockChannel{id: "web"}
	e := newEditStreamer(ch, EditStreamerConfig{})

	e.Finish("whole reply")
	assert.Equal(t, []string{"whole reply"}, ch.bodies())

	ch = &mockChannel{id: "web"}
	e = newEditStreamer(ch, EditStreamerConfig{})
	e.Finish("")
	assert.Empty(t, ch.messages())
	assert.False(t, e.Sent())
}

func TestEditStreamer_RollsOverLongReplies(t *testing.T) {
	ch := &mockChannel{id: "web"}
	e := newEditStreamer(ch, EditStreamerConfig{Interval: time.Millisecond, MinChars: 1, MaxMessageLen: 20})

	words := strings.Repeat("word ", 10) // 50 bytes
	for _, w := range strings.SplitAfter(words, " ") {
		if w != "" {
			e.OnDelta(w)
		}
	}
	e.Finish(strings.TrimSpace(words))

	final := ch.final()
	require.Len(t, final, 3)
	for _, body := range final {
		assert.LessOrEqual(t, len(body), 20)
	}
	assert.Equal(t, strings.TrimSpace(words), strings.Join(final, " "))
}

func TestEditStreamer_ChannelLimitWins(t *testing.T) {
	ch := &mockChannel{id: "web", maxLen: 5}
	e := newEditStreamer(ch, EditStreamerConfig{MaxMessageLen: 2000})

	e.Finish("abcdefghij")
	assert.Equal(t, []string{"abcde", "fghij"}, ch.final())
}

func TestEditStreamer_EditFailureContinuesInNewMessage(t *testing.T) {
	ch := &mockChannel{id: "web", editErr: errors.New("message deleted")}
	e := newEditStreamer(ch, EditStreamerConfig{Interval: time.Millisecond, MinChars: 1})

	e.OnDelta("first")
	time.Sleep(5 * time.Millisecond)
	e.OnDelta(" second")

	assert.Equal(t, []string{"first", "second"}, ch.bodies())
}

func TestSplitPoint(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  int
	}{
		{"space", "hello world again", 12, 11},
		{"newline", "hello\nworld", 8, 5},
		{"no break", "abcdefghij", 4, 4},
		{"rune boundary", "aé", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitPoint(tt.in, tt.limit))
		})
	}
}
