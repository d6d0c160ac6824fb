package decoder

import (
	"fmt"
	"net/url"
	"sync"
)

// Factory constructs a Port for an asset URI whose scheme the Factory was
// registered under.
type Factory func(asset string) (Port, error)

// Registry dispatches asset URIs to a Port Factory by scheme, so a
// Channel's PortFactory (engine.PortFactory) can stay decoder-agnostic:
// each registered scheme (cmd/playoutd registers "synthetic" and "file")
// resolves to its own Port implementation without the engine ever
// importing a concrete decoder.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates scheme with factory. A later call for the same
// scheme replaces the earlier one.
func (r *Registry) Register(scheme string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[scheme] = factory
}

// Build parses asset as a URI and dispatches to the Factory registered for
// its scheme, wrapping ErrUnsupported if none matches.
func (r *Registry) Build(asset string) (Port, error) {
	u, err := url.Parse(asset)
	if err != nil {
		return nil, &IoError{Op: "parse_asset", Err: err}
	}

	r.mu.RLock()
	factory, ok := r.factories[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
	}
	return factory(asset)
}
