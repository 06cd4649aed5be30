package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// Registry holds backend clients by API name and resolves the configured one.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // api name → client
	aliases  map[string]string // alternate name → api name
	fallback string
	log      *logging.Logger
}

// NewRegistry creates an empty backend registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given API name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("backend", name).Msg("registered chat backend")
}

// Alias maps an alternate name to a registered API name.
// e.g., Alias("llamacpp", "openai") lets configs say "llamacpp".
func (r *Registry) Alias(alt, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alt] = name
}

// SetFallback sets the client used when a name matches nothing.
func (r *Registry) SetFallback(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = name
}

// Resolve returns the Client for a name.
// Resolution order: exact name → alias → fallback.
func (r *Registry) Resolve(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name = strings.ToLower(strings.TrimSpace(name))
	if c, ok := r.clients[name]; ok {
		return c, nil
	}
	if target, ok := r.aliases[name]; ok {
		if c, ok := r.clients[target]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no chat backend for %q", name)
}

// List returns all registered backend names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig registers the backend described by cfg and makes it
// the fallback. An empty model leaves the registry empty.
func NewRegistryFromConfig(cfg config.BackendConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)
	if cfg.Model == "" {
		reg.log.Warn().Msg("no backend model configured")
		return reg
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second

	switch strings.ToLower(cfg.API) {
	case "openai":
		reg.Register("openai", NewOpenAIAPIClient(cfg.Endpoint, cfg.APIKey, cfg.Model, timeout))
		reg.SetFallback("openai")
		for _, alias := range []string{"openai-compatible", "llamacpp", "vllm", "lmstudio"} {
			reg.Alias(alias, "openai")
		}

	default:
		reg.Register("ollama", NewOllamaAPIClient(cfg.Endpoint, cfg.Model, timeout))
		reg.SetFallback("ollama")
	}

	return reg
}
