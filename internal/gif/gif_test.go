package gif

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTree creates <root>/<category>/<file> for each entry.
func makeTree(t *testing.T, files map[string][]string) string {
	t.Helper()
	root := t.TempDir()
	for cat, names := range files {
		dir := filepath.Join(root, cat)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for _, n := range names {
			require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("GIF89a"), 0o644))
		}
	}
	return root
}

func TestPickRandom(t *testing.T) {
	root := makeTree(t, map[string][]string{
		"happy": {"a.gif", "b.PNG", "notes.txt"},
	})
	p := NewPicker(root)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		path, err := p.PickRandom("happy")
		require.NoError(t, err)
		seen[filepath.Base(path)] = true
	}
	assert.Equal(t, map[string]bool{"a.gif": true, "b.PNG": true}, seen)
}

func TestPickRandomDeterministic(t *testing.T) {
	root := makeTree(t, map[string][]string{"sad": {"1.gif", "2.gif", "3.jpeg"}})
	p := NewPicker(root)
	p.intn = func(n int) int { return n - 1 }

	path, err := p.PickRandom("sad")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sad", "3.jpeg"), path)
}

func TestPickRandomNotFound(t *testing.T) {
	root := makeTree(t, map[string][]string{
		"empty": nil,
		"docs":  {"readme.md"},
	})
	p := NewPicker(root)

	for _, cat := range []string{"missing", "empty", "docs", "../etc", ".."} {
		_, err := p.PickRandom(cat)
		assert.ErrorIs(t, err, ErrNotFound, cat)
	}
}

func TestPickRandomAnyCategory(t *testing.T) {
	root := makeTree(t, map[string][]string{
		"happy": {"a.gif"},
		"sad":   nil,
	})
	p := NewPicker(root)

	path, err := p.PickRandom("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "happy", "a.gif"), path)

	_, err = NewPicker(filepath.Join(root, "nope")).PickRandom("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAvailable(t *testing.T) {
	root := makeTree(t, map[string][]string{
		"happy": {"a.gif"},
		"angry": {"b.jpg"},
		"sad":   nil,
	})
	assert.Equal(t, []string{"angry", "happy"}, NewPicker(root).Available())
}

func TestAnalyze(t *testing.T) {
	p := NewPicker(t.TempDir())
	p.intn = func(int) int { return 0 }

	tests := []struct {
		text string
		want string
	}{
		{"I'm so happy and glad, yay!", "happy"},
		{"Sorry, that's unfortunate.", "sad"},
		{"Wow, that's incredible", "shocked"},
		{"Hello there!", "greeting"},
		{"Goodbye, take care", "farewell"},
		{"You are WRONG, that's incorrect", "disagree"},
		{"Let me think about this", "thinking"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Analyze(tt.text), tt.text)
	}
}

func TestAnalyzeWordBoundaries(t *testing.T) {
	p := NewPicker(t.TempDir())
	p.intn = func(int) int { return 0 }
	// "this" and "thinking" must not count as the greeting "hi".
	assert.Equal(t, "thinking", p.Analyze("this needs thinking"))
}

func TestAnalyzeTieAndNoMatch(t *testing.T) {
	p := NewPicker(t.TempDir())

	p.intn = func(n int) int { return n - 1 }
	// one hit each for agree and angry; sorted order is agree, angry.
	assert.Equal(t, "angry", p.Analyze("exactly, I'm annoyed"))

	p.intn = func(int) int { return 0 }
	assert.Equal(t, "agree", p.Analyze("zzz qqq"), "no match picks from all categories")
}
