// Package service is the engine's service locator: subsystems publish
// factories under stable names and consumers resolve them without
// compile-time coupling. Services are either process-wide or scoped to a
// zone, in which case each zone gets its own lazily built instance.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// Factory builds a service instance. Zone-scoped factories receive the
// zone; process-wide factories are called with the zero ZoneID once.
type Factory func(zone domain.ZoneID) (any, error)

type registration struct {
	factory    Factory
	zoneScoped bool
}

type instanceKey struct {
	name string
	zone domain.ZoneID
}

// Locator resolves services by name. Safe for concurrent use; instances
// are built at most once per (name, zone).
type Locator struct {
	logger *slog.Logger

	mu        sync.Mutex
	factories map[string]registration
	instances map[instanceKey]any
}

// NewLocator returns an empty locator.
func NewLocator(logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		logger:    logger,
		factories: make(map[string]registration),
		instances: make(map[instanceKey]any),
	}
}

// Register installs a process-wide factory. Registering a name twice is
// an idempotent no-op keeping the first factory, with a logged warning.
func (l *Locator) Register(name string, factory Factory) error {
	return l.register(name, factory, false)
}

// RegisterZoneScoped installs a factory invoked once per zone.
func (l *Locator) RegisterZoneScoped(name string, factory Factory) error {
	return l.register(name, factory, true)
}

func (l *Locator) register(name string, factory Factory, zoneScoped bool) error {
	if name == "" {
		return domain.ErrEmptyName
	}
	if factory == nil {
		return fmt.Errorf("service %q: nil factory", name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.factories[name]; exists {
		l.logger.Warn("service already registered", "name", name)
		return nil
	}
	l.factories[name] = registration{factory: factory, zoneScoped: zoneScoped}
	return nil
}

// Get resolves a process-wide service, building it on first use.
func (l *Locator) Get(name string) (any, error) {
	return l.resolve(name, 0)
}

// GetForZone resolves a service for a zone. Process-wide services ignore
// the zone and return the shared instance.
func (l *Locator) GetForZone(name string, zone domain.ZoneID) (any, error) {
	return l.resolve(name, zone)
}

func (l *Locator) resolve(name string, zone domain.ZoneID) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reg, ok := l.factories[name]
	if !ok {
		return nil, fmt.Errorf("service %q not registered", name)
	}
	if !reg.zoneScoped {
		zone = 0
	}
	key := instanceKey{name: name, zone: zone}
	if inst, ok := l.instances[key]; ok {
		return inst, nil
	}
	inst, err := reg.factory(zone)
	if err != nil {
		return nil, fmt.Errorf("service %q: %w", name, err)
	}
	l.instances[key] = inst
	return inst, nil
}

// EvictZone drops every zone-scoped instance for the zone, closing those
// that implement io.Closer. Called when a zone hibernates.
func (l *Locator) EvictZone(zone domain.ZoneID) {
	l.mu.Lock()
	var closers []io.Closer
	for key, inst := range l.instances {
		if key.zone != zone || key.zone == 0 {
			continue
		}
		if c, ok := inst.(io.Closer); ok {
			closers = append(closers, c)
		}
		delete(l.instances, key)
	}
	l.mu.Unlock()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			l.logger.Warn("service close failed", "zone", zone, "error", err)
		}
	}
}

// Names returns the registered service names, sorted.
func (l *Locator) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.factories))
	for name := range l.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown closes every built instance that implements io.Closer and
// clears the locator.
func (l *Locator) Shutdown() {
	l.mu.Lock()
	var closers []io.Closer
	for _, inst := range l.instances {
		if c, ok := inst.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	l.instances = make(map[instanceKey]any)
	l.factories = make(map[string]registration)
	l.mu.Unlock()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			l.logger.Warn("service close failed", "error", err)
		}
	}
}

// Resolve resolves and type-asserts a process-wide service.
func Resolve[T any](l *Locator, name string) (T, error) {
	var zero T
	inst, err := l.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("service %q: has type %T", name, inst)
	}
	return typed, nil
}
