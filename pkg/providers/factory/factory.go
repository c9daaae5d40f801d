package factory

import (
	"sort"
	"sync"

	"github.com/go-go-golems/forkchat/pkg/config"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/go-go-golems/forkchat/pkg/providers/claude"
	"github.com/go-go-golems/forkchat/pkg/providers/echo"
	"github.com/go-go-golems/forkchat/pkg/providers/gemini"
	"github.com/go-go-golems/forkchat/pkg/providers/openaicompat"
	"github.com/rs/zerolog/log"
)

// Registry holds the configured provider instances.
type Registry struct {
	mu        sync.RWMutex
	providers map[providers.Name]providers.Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[providers.Name]providers.Provider{}}
}

// NewRegistryFromSettings registers every provider that has an API key, plus
// the echo provider when enabled.
func NewRegistryFromSettings(s config.ProvidersSettings) *Registry {
	r := NewRegistry()
	if s.Anthropic.Configured() {
		r.Register(claude.New(s.Anthropic.APIKey, s.Anthropic.BaseURL))
	}
	if s.Gemini.Configured() {
		r.Register(gemini.New(s.Gemini.APIKey, s.Gemini.BaseURL))
	}
	if s.DeepSeek.Configured() {
		r.Register(openaicompat.NewDeepSeek(s.DeepSeek.APIKey, s.DeepSeek.BaseURL))
	}
	if s.Kimi.Configured() {
		r.Register(openaicompat.NewKimi(s.Kimi.APIKey, s.Kimi.BaseURL))
	}
	if s.Echo {
		r.Register(echo.New())
	}
	log.Debug().Strs("providers", r.names()).Msg("provider registry ready")
	return r
}

func (r *Registry) Register(p providers.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, 0, len(r.providers))
	for n := range r.providers {
		ret = append(ret, n.String())
	}
	sort.Strings(ret)
	return ret
}

// Get resolves a provider by its key or display name. A known provider
// without credentials yields a NotConfiguredError.
func (r *Registry) Get(name string) (providers.Provider, error) {
	n, err := providers.ParseName(name)
	if err != nil {
		return nil, &providers.ProviderError{Kind: providers.KindConfig, Provider: providers.Name(name), Err: err}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[n]
	if !ok {
		return nil, providers.NotConfiguredError(n)
	}
	return p, nil
}

// Info describes a provider for listings.
type Info struct {
	Name        providers.Name    `json:"id" yaml:"id"`
	DisplayName string            `json:"name" yaml:"name"`
	Configured  bool              `json:"configured" yaml:"configured"`
	Models      []providers.Model `json:"models" yaml:"models"`
}

// Describe lists all known providers in display order, with the models of
// the configured ones.
func (r *Registry) Describe() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]Info, 0, len(providers.Names()))
	for _, n := range providers.Names() {
		info := Info{Name: n, DisplayName: n.DisplayName(), Models: []providers.Model{}}
		if p, ok := r.providers[n]; ok {
			info.Configured = true
			info.Models = p.Models()
		}
		ret = append(ret, info)
	}
	return ret
}
