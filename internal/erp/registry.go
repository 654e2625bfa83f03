package erp

import (
	"strings"

	"github.com/smallbiznis/cashapp/internal/erp/domain"
)

// Registry dispatches to the Factory configured for a given erp_system.
type Registry struct {
	factories map[string]domain.Factory
}

func NewRegistry(factories ...domain.Factory) *Registry {
	registry := &Registry{factories: map[string]domain.Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		kind := strings.ToLower(strings.TrimSpace(factory.Kind()))
		if kind == "" {
			continue
		}
		registry.factories[kind] = factory
	}
	return registry
}

func (r *Registry) Supports(kind string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[strings.ToLower(strings.TrimSpace(kind))]
	return ok
}

func (r *Registry) NewAdapter(kind string, cfg domain.AdapterConfig) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	factory, ok := r.factories[kind]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}
