package language

import (
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/Shree113/newcd/internal/apperror"
)

// Registry is the read-only lookup from language key to Profile. It is built
// once at start-up; nothing mutates it afterwards, so concurrent requests
// share it without locking.
type Registry struct {
	profiles map[string]Profile
	// available memoizes the toolchain probe per profile. The map itself is
	// fixed at construction; each entry is safe for concurrent use.
	available map[string]func() bool
}

// Option customizes a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	lookPath func(string) (string, error)
}

// WithLookPath replaces exec.LookPath for the toolchain probe. The docker
// backend passes a probe that always succeeds because the toolchain lives in
// the image, not on the host.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(o *registryOptions) {
		o.lookPath = fn
	}
}

// NewRegistry validates the profiles and freezes them.
func NewRegistry(profiles []Profile, opts ...Option) (*Registry, error) {
	o := registryOptions{lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(&o)
	}

	reg := &Registry{
		profiles:  make(map[string]Profile, len(profiles)),
		available: make(map[string]func() bool, len(profiles)),
	}

	for _, p := range profiles {
		p.Key = normalizeKey(p.Key)
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, exists := reg.profiles[p.Key]; exists {
			return nil, fmt.Errorf("duplicate language profile %q", p.Key)
		}
		if p.CompileTimeout == 0 {
			p.CompileTimeout = DefaultCompileTimeout
		}
		if p.RunTimeout == 0 {
			p.RunTimeout = DefaultRunTimeout
		}

		p = p.clone()
		reg.profiles[p.Key] = p

		bins := p.Toolchain()
		lookPath := o.lookPath
		reg.available[p.Key] = sync.OnceValue(func() bool {
			for _, bin := range bins {
				if _, err := lookPath(bin); err != nil {
					return false
				}
			}
			return true
		})
	}

	if len(reg.profiles) == 0 {
		return nil, fmt.Errorf("at least one language profile must be configured")
	}

	return reg, nil
}

// Resolve returns the profile for key, or an UnsupportedLanguage error.
// Unknown keys are never mapped to a fallback profile.
func (r *Registry) Resolve(key string) (Profile, error) {
	p, ok := r.profiles[normalizeKey(key)]
	if !ok {
		return Profile{}, apperror.UnsupportedLanguage(strings.TrimSpace(key))
	}
	return p.clone(), nil
}

// ToolchainAvailable reports whether every binary the profile needs is on the
// host. The probe runs on first use and is cached.
func (r *Registry) ToolchainAvailable(p Profile) bool {
	probe, ok := r.available[p.Key]
	if !ok {
		return false
	}
	return probe()
}

// Keys returns the supported language keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Profiles returns copies of all profiles, sorted by key.
func (r *Registry) Profiles() []Profile {
	keys := r.Keys()
	out := make([]Profile, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.profiles[k].clone())
	}
	return out
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
