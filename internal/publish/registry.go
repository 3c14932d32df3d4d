package publish

import (
	"sort"
	"strings"
	"sync"
)

const (
	PlatformTwitter  = "twitter"
	PlatformLinkedIn = "linkedin"
)

// Registry maps a lowercase platform id to its adapter.
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]Platform
}

func NewRegistry(platforms ...Platform) *Registry {
	r := &Registry{platforms: make(map[string]Platform, len(platforms))}
	for _, p := range platforms {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the adapter for p.Name().
func (r *Registry) Register(p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[normalizeName(p.Name())] = p
}

func (r *Registry) Lookup(name string) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.platforms[normalizeName(name)]
	return p, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NewDefaultRegistry wires the built-in adapters.
func NewDefaultRegistry(creds CredentialStore, twitterURL, linkedInURL string, opts ClientOptions) *Registry {
	platforms := []Platform{
		NewTwitter(creds, twitterURL, opts),
		NewLinkedIn(creds, linkedInURL, opts),
	}
	if opts.Sandbox {
		for i, p := range platforms {
			platforms[i] = NewSandbox(p, creds)
		}
	}
	return NewRegistry(platforms...)
}
