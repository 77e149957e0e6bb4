package platform

import (
	"fmt"

	"github.com/flowpilot-io/flowpilot/pkg/registry"
)

// Registry holds the configured platform adapters, keyed by platform name.
type Registry struct {
	*registry.BaseRegistry[Adapter]
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Adapter](),
	}
}

// RegisterAdapter registers an adapter under its platform name.
func (r *Registry) RegisterAdapter(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter cannot be nil")
	}
	if adapter.Name() == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	return r.Register(adapter.Name(), adapter)
}

// ForPlatform returns the adapter for a platform name. An unregistered
// platform is a configuration error, not a remote failure.
func (r *Registry) ForPlatform(name string) (Adapter, error) {
	adapter, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("No service configured for platform: %s", name)
	}
	return adapter, nil
}
