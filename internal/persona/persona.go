// Package persona holds the fixed catalog of named system prompts.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound is returned when a name matches no persona.
	ErrNotFound = errors.New("persona not found")
	// ErrDuplicate is returned when two names normalize to the same key.
	ErrDuplicate = errors.New("duplicate persona name")
	// ErrNoDefault is returned when the default name is not in the catalog.
	ErrNoDefault = errors.New("default persona not in catalog")
)

//go:embed builtin.yaml
var builtinYAML []byte

// Persona is a named system prompt.
type Persona struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"prompt"`
}

// Catalog is an immutable set of personas with one default.
type Catalog struct {
	byKey map[string]Persona
	names []string
	def   Persona
}

// Normalize returns the lookup key for a persona name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// New builds a catalog. Names keep their given order and are stored
// normalized; construction fails if any two collide or defaultName is absent.
func New(items []Persona, defaultName string) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]Persona, len(items))}
	for _, p := range items {
		key := Normalize(p.Name)
		if key == "" {
			return nil, fmt.Errorf("persona with empty name")
		}
		if _, ok := c.byKey[key]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, p.Name)
		}
		p.Name = key
		c.byKey[key] = p
		c.names = append(c.names, key)
	}

	def, ok := c.byKey[Normalize(defaultName)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDefault, defaultName)
	}
	c.def = def
	return c, nil
}

// Resolve looks up a persona by case-insensitive name.
func (c *Catalog) Resolve(name string) (Persona, error) {
	p, ok := c.byKey[Normalize(name)]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Names returns persona names in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Default returns the designated default persona.
func (c *Catalog) Default() Persona { return c.def }

// Builtin returns the personas shipped with the binary.
func Builtin() ([]Persona, error) {
	return parse(builtinYAML)
}

// Options control how Load assembles a catalog.
type Options struct {
	File         string // optional YAML list merged over the built-ins
	DefaultName  string
	SystemPrompt string // replaces the default persona's prompt when set
}

// Load builds the runtime catalog: built-ins, then file entries (same name
// replaces, new names append), then the default prompt override.
func Load(opts Options) (*Catalog, error) {
	items, err := Builtin()
	if err != nil {
		return nil, fmt.Errorf("builtin personas: %w", err)
	}

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("read personas file: %w", err)
		}
		extra, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", opts.File, err)
		}
		items, err = merge(items, extra)
		if err != nil {
			return nil, err
		}
	}

	if opts.SystemPrompt != "" {
		key := Normalize(opts.DefaultName)
		for i := range items {
			if Normalize(items[i].Name) == key {
				items[i].SystemPrompt = opts.SystemPrompt
			}
		}
	}

	return New(items, opts.DefaultName)
}

func parse(data []byte) ([]Persona, error) {
	var items []Persona
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].SystemPrompt = strings.TrimSpace(items[i].SystemPrompt)
	}
	return items, nil
}

// merge overlays extra onto base. Duplicates within extra itself are an error.
func merge(base, extra []Persona) ([]Persona, error) {
	out := append([]Persona(nil), base...)
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[Normalize(p.Name)] = i
	}
	seen := make(map[string]bool, len(extra))
	for _, p := range extra {
		key := Normalize(p.Name)
		if seen[key] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, p.Name)
		}
		seen[key] = true
		if i, ok := index[key]; ok {
			out[i] = p
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out, nil
}
