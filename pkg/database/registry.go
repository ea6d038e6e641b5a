package database

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/logger"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// FactoryConstructor creates a ConnectionFactory for a URL.
type FactoryConstructor func(url string) (ConnectionFactory, error)

// Registry maps database type names to factory constructors.
type Registry struct {
	constructors map[string]FactoryConstructor
	mu           sync.RWMutex
	logger       *zap.Logger
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]FactoryConstructor),
		logger:       logger.Get().With(zap.String("component", "database_registry")),
	}
}

// Register adds a constructor under name
func (r *Registry) Register(name string, constructor FactoryConstructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[name]; exists {
		return poolerrors.New(poolerrors.ErrorTypeConfig, fmt.Sprintf("database type %s already registered", name))
	}

	r.constructors[name] = constructor
	r.logger.Debug("database type registered", zap.String("name", name))
	return nil
}

// NewFactory creates a factory of the named type for url
func (r *Registry) NewFactory(name, url string) (ConnectionFactory, error) {
	r.mu.RLock()
	constructor, exists := r.constructors[name]
	r.mu.RUnlock()

	if !exists {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, fmt.Sprintf("database type %s not found", name)).
			WithDetail("registered", r.Types())
	}

	factory, err := constructor(url)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, fmt.Sprintf("failed to create %s connection factory", name))
	}

	return factory, nil
}

// Types returns the registered type names in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a constructor to the global registry
func Register(name string, constructor FactoryConstructor) error {
	return globalRegistry.Register(name, constructor)
}

// MustRegister is Register for init functions
func MustRegister(name string, constructor FactoryConstructor) {
	if err := Register(name, constructor); err != nil {
		panic(err)
	}
}

// NewFactory creates a factory from the global registry
func NewFactory(name, url string) (ConnectionFactory, error) {
	return globalRegistry.NewFactory(name, url)
}

// Types lists the database types in the global registry
func Types() []string {
	return globalRegistry.Types()
}
