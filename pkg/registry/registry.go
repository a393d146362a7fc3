// Package registry holds the services SERVICE activities call by name.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/netvariant/moqui-workflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrNotRegistered    = errors.New("service not registered")
	ErrInvalidParams    = errors.New("invalid service parameters")
	ErrDuplicateService = errors.New("service already registered")
)

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	services map[string]protocol.Service
	schemas  map[string]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log.With("module", "registry"),
		services: make(map[string]protocol.Service),
		schemas:  make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a service and compiles its parameter schema.
func (r *Registry) Register(service protocol.Service) error {
	var schema *gojsonschema.Schema

	if s := service.Schema(); s != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(s))
		if err != nil {
			return fmt.Errorf("service %s: invalid schema: %w", service.ID(), err)
		}

		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[service.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateService, service.ID())
	}

	r.services[service.ID()] = service
	r.schemas[service.ID()] = schema

	r.logger.Debug("Registered service", "service", service.ID())

	return nil
}

func (r *Registry) Get(id string) (protocol.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, ok := r.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}

	return service, nil
}

// IDs lists the registered services in name order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Call validates params against the service schema and invokes it.
func (r *Registry) Call(ctx context.Context, id string, params map[string]any) (map[string]any, error) {
	service, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	schema := r.schemas[id]
	r.mu.RUnlock()

	if schema != nil {
		if err := validate(schema, params); err != nil {
			return nil, fmt.Errorf("service %s: %w", id, err)
		}
	}

	return service.Call(ctx, params)
}

func validate(schema *gojsonschema.Schema, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(errs, "; "))
	}

	return nil
}
