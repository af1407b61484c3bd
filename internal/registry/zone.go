package registry

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AgenticGames/miningspice/internal/locking"
	"github.com/AgenticGames/miningspice/pkg/domain"
)

// RegistryTypeZone is the identifier ZoneKindRegistry reports from
// GetRegistryType.
const RegistryTypeZone = "zone"

// ZoneKind describes a category of spatial zone: its span in chunks, the
// transaction defaults applied to mutations inside it, and whether it is
// eligible for hibernation when idle.
type ZoneKind struct {
	ID            domain.TypeID
	Name          string
	SchemaVersion uint32
	// Span is the cubic zone edge length in world units, clamped to the
	// supported range.
	Span float64
	// TxnDefaults seeds the transaction configuration for operations
	// running against zones of this kind.
	TxnDefaults domain.TxnConfig
	// Hibernatable marks kinds whose idle zones may be compressed and
	// evicted to the snapshot store.
	Hibernatable bool
	RegisteredAt time.Time
}

// Clone returns an independent copy.
func (k *ZoneKind) Clone() *ZoneKind {
	if k == nil {
		return nil
	}
	out := *k
	return &out
}

// ZoneKindRegistry catalogs zone kinds. It follows the same locking
// discipline as the material registry: a spin lock across the name index
// and table so registration is atomic to observers.
type ZoneKindRegistry struct {
	logger *slog.Logger

	initialized atomic.Bool

	lock   locking.SpinLock
	table  *VersionedTable[*ZoneKind]
	byName map[string]domain.TypeID
	next   locking.Counter
}

// NewZoneKindRegistry builds an uninitialized registry.
func NewZoneKindRegistry(logger *slog.Logger) *ZoneKindRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ZoneKindRegistry{
		logger: logger,
		table:  NewVersionedTable[*ZoneKind](),
		byName: make(map[string]domain.TypeID),
	}
}

// Initialize marks the registry ready. Initializing twice is harmless.
func (r *ZoneKindRegistry) Initialize() error {
	r.initialized.Store(true)
	return nil
}

// Shutdown clears the registry and marks it uninitialized.
func (r *ZoneKindRegistry) Shutdown() {
	r.Clear()
	r.initialized.Store(false)
}

// GetRegistryType identifies this registry in the shared registry
// interface.
func (r *ZoneKindRegistry) GetRegistryType() string { return RegistryTypeZone }

func clampSpan(span float64) float64 {
	if span < domain.MinZoneSpan {
		return domain.MinZoneSpan
	}
	if span > domain.MaxZoneSpan {
		return domain.MaxZoneSpan
	}
	return span
}

// RegisterKind adds a zone kind. Spans outside the supported range are
// clamped with a logged warning. Registering an existing name is an
// idempotent no-op returning the original ID.
func (r *ZoneKindRegistry) RegisterKind(name string, span float64, txnDefaults domain.TxnConfig, hibernatable bool) domain.TypeID {
	if !r.initialized.Load() {
		r.logger.Error("register zone kind failed", "name", name, "error", domain.ErrNotInitialized)
		return domain.InvalidTypeID
	}
	if name == "" {
		r.logger.Error("register zone kind failed", "error", domain.ErrEmptyName)
		return domain.InvalidTypeID
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if existing, ok := r.byName[name]; ok {
		r.logger.Warn("zone kind already registered", "name", name, "id", existing)
		return existing
	}
	clamped := clampSpan(span)
	if clamped != span {
		r.logger.Warn("zone span clamped", "name", name, "requested", span, "span", clamped)
	}
	if txnDefaults.Kind == "" {
		txnDefaults.Kind = name
	}

	kind := &ZoneKind{
		ID:            domain.TypeID(r.next.Increment()),
		Name:          name,
		SchemaVersion: 1,
		Span:          clamped,
		TxnDefaults:   txnDefaults,
		Hibernatable:  hibernatable,
		RegisteredAt:  time.Now().UTC(),
	}
	r.byName[name] = kind.ID
	r.table.Put(uint32(kind.ID), kind)
	return kind.ID
}

// GetKind returns a copy of the kind for id.
func (r *ZoneKindRegistry) GetKind(id domain.TypeID) (*ZoneKind, bool) {
	kind, ok := r.table.Get(uint32(id))
	if !ok {
		return nil, false
	}
	return kind.Clone(), true
}

// GetKindByName resolves a name and returns a copy of its kind.
func (r *ZoneKindRegistry) GetKindByName(name string) (*ZoneKind, bool) {
	r.lock.Lock()
	id, ok := r.byName[name]
	r.lock.Unlock()
	if !ok {
		return nil, false
	}
	return r.GetKind(id)
}

// TxnDefaults returns the transaction configuration for the named kind,
// falling back to the global default for unknown names.
func (r *ZoneKindRegistry) TxnDefaults(name string) domain.TxnConfig {
	if kind, ok := r.GetKindByName(name); ok {
		return kind.TxnDefaults
	}
	cfg := domain.DefaultTxnConfig()
	cfg.Kind = name
	return cfg
}

// ZoneFor maps a world position to its zone under the named kind's span.
func (r *ZoneKindRegistry) ZoneFor(name string, x, y, z float64) domain.ZoneID {
	span := float64(domain.DefaultZoneSpan)
	if kind, ok := r.GetKindByName(name); ok {
		span = kind.Span
	}
	return domain.ZoneForPosition(x, y, z, span)
}

// SetKindVersion updates a kind's schema version.
func (r *ZoneKindRegistry) SetKindVersion(id domain.TypeID, newVersion uint32) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	kind, ok := r.table.Get(uint32(id))
	if !ok {
		r.logger.Error("set zone kind version failed", "id", id, "error", domain.ErrUnknownType)
		return false
	}
	next := kind.Clone()
	next.SchemaVersion = newVersion
	r.table.Put(uint32(id), next)
	return true
}

// KindCount returns the number of registered kinds.
func (r *ZoneKindRegistry) KindCount() int { return r.table.Len() }

// Range visits every kind.
func (r *ZoneKindRegistry) Range(fn func(*ZoneKind) bool) {
	r.table.Range(func(_ uint32, kind *ZoneKind) bool {
		return fn(kind.Clone())
	})
}

// Clear removes every kind. The registry stays initialized.
func (r *ZoneKindRegistry) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.table.Clear()
	r.byName = make(map[string]domain.TypeID)
}
