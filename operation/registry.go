package operation

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/c360/visionflow/errors"
)

// Kind classifies an operation factory
type Kind string

const (
	KindInput       Kind = "input"
	KindProcessor   Kind = "processor"
	KindOutput      Kind = "output"
	KindFlowControl Kind = "flowcontrol"
)

// Factory creates an operation from its raw JSON configuration. Factories
// must not start goroutines or perform I/O; that belongs in Start.
type Factory func(name string, rawConfig json.RawMessage, deps Dependencies) (Operation, error)

// Registration holds a factory and its metadata
type Registration struct {
	Name        string  `json:"name"`
	Kind        Kind    `json:"kind"`
	Description string  `json:"description"`
	Version     string  `json:"version"`
	Factory     Factory `json:"-"`
}

// Registry maps factory names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*Registration
}

// NewRegistry creates an empty factory registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]*Registration)}
}

// RegisterFactory registers a factory under registration.Name
func (r *Registry) RegisterFactory(registration *Registration) error {
	if registration == nil || registration.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}
	if err := ValidateName(registration.Name); err != nil {
		return errors.Wrap(err, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration.Kind == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "kind validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[registration.Name]; exists {
		msg := fmt.Errorf("factory '%s' is already registered", registration.Name)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}
	r.factories[registration.Name] = registration
	return nil
}

// Create builds a named operation using the given factory
func (r *Registry) Create(factory, name string, rawConfig json.RawMessage, deps Dependencies) (Operation, error) {
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "operation name validation")
	}
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "config security validation")
	}

	r.mu.RLock()
	registration, exists := r.factories[factory]
	r.mu.RUnlock()
	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrFactoryNotFound, factory),
			"Registry", "Create", "factory lookup")
	}

	op, err := registration.Factory(name, rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", fmt.Sprintf("factory %s", factory))
	}
	return op, nil
}

// Lookup returns the registration for a factory name
func (r *Registry) Lookup(factory string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[factory]
	return reg, ok
}

// ListFactories returns a copy of all registrations keyed by name
func (r *Registry) ListFactories() map[string]*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.factories)
}

// Names returns the registered factory names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
