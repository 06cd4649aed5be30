// Package gif picks reaction images from a folder of category subdirectories.
package gif

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when no image is available for a request.
var ErrNotFound = errors.New("no gif found")

// Categories maps each reaction category to the keywords that select it.
var Categories = map[string][]string{
	"happy":    {"happy", "glad", "joy", "excited", "wonderful", "excellent", "smile", "laugh", "yay", "great"},
	"sad":      {"sad", "sorry", "unfortunate", "regret", "unhappy", "disappointing", "depressed"},
	"confused": {"confused", "unsure", "not sure", "unclear", "strange", "weird", "don't understand"},
	"thinking": {"thinking", "consider", "analyzing", "processing", "let me think", "interesting question"},
	"shocked":  {"shocked", "surprised", "wow", "amazing", "incredible", "unbelievable", "no way"},
	"angry":    {"angry", "frustrated", "upset", "annoyed", "irritated"},
	"agree":    {"agree", "correct", "right", "exactly", "absolutely", "definitely"},
	"disagree": {"disagree", "incorrect", "wrong", "mistaken", "error", "not quite"},
	"greeting": {"hello", "hi", "hey", "greetings", "good morning", "good afternoon", "good evening"},
	"farewell": {"goodbye", "bye", "see you", "farewell", "take care", "until next time"},
}

var imageExts = map[string]bool{".gif": true, ".png": true, ".jpg": true, ".jpeg": true}

// categoryNames is the sorted key set of Categories.
var categoryNames = func() []string {
	names := make([]string, 0, len(Categories))
	for k := range Categories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}()

// keywordPatterns match keywords on word boundaries so "hi" does not fire on "this".
var keywordPatterns = func() map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(Categories))
	for cat, words := range Categories {
		for _, w := range words {
			out[cat] = append(out[cat], regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
		}
	}
	return out
}()

// Picker selects random images beneath a root folder laid out as
// <root>/<category>/<file>.
type Picker struct {
	root string

	mu   sync.Mutex
	intn func(n int) int
}

// NewPicker creates a picker rooted at folder.
func NewPicker(folder string) *Picker {
	return &Picker{root: folder, intn: rand.IntN}
}

// Analyze returns the category whose keywords appear most often in text.
// Ties are broken at random; text with no keywords gets a random category.
func (p *Picker) Analyze(text string) string {
	lower := strings.ToLower(text)

	best := 0
	var top []string
	for _, cat := range categoryNames {
		score := 0
		for _, re := range keywordPatterns[cat] {
			if re.MatchString(lower) {
				score++
			}
		}
		switch {
		case score == 0:
		case score > best:
			best, top = score, []string{cat}
		case score == best:
			top = append(top, cat)
		}
	}
	if len(top) == 0 {
		top = categoryNames
	}
	return top[p.pick(len(top))]
}

// PickRandom returns the path of a random image in category. An empty
// category picks among the category folders that have images.
func (p *Picker) PickRandom(category string) (string, error) {
	if category == "" {
		cats := p.Available()
		if len(cats) == 0 {
			return "", fmt.Errorf("%w: no categories under %s", ErrNotFound, p.root)
		}
		category = cats[p.pick(len(cats))]
	}

	files, err := p.images(category)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: category %q is empty", ErrNotFound, category)
	}
	return filepath.Join(p.root, category, files[p.pick(len(files))]), nil
}

// Available returns the sorted category folders that contain at least one image.
func (p *Picker) Available() []string {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if files, err := p.images(e.Name()); err == nil && len(files) > 0 {
			out = append(out, e.Name())
		}
	}
	return out
}

func (p *Picker) images(category string) ([]string, error) {
	if category != filepath.Base(category) || category == "." || category == ".." {
		return nil, fmt.Errorf("%w: invalid category %q", ErrNotFound, category)
	}
	entries, err := os.ReadDir(filepath.Join(p.root, category))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: category %q missing", ErrNotFound, category)
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (p *Picker) pick(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intn(n)
}
