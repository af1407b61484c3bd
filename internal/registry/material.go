package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/AgenticGames/miningspice/internal/locking"
	"github.com/AgenticGames/miningspice/internal/sched"
	"github.com/AgenticGames/miningspice/internal/txn"
	"github.com/AgenticGames/miningspice/pkg/domain"
)

// RegistryTypeMaterial is the identifier MaterialRegistry reports from
// GetRegistryType.
const RegistryTypeMaterial = "material"

// parallelInitThreshold is the type count above which phased
// initialization fans out through the scheduler.
const parallelInitThreshold = 4

// TypeInitializer performs a type's one-time setup during phased
// initialization. Initializers run after every type the record depends on
// has finished its own.
type TypeInitializer func(ctx context.Context, rec *domain.TypeRecord) error

type relPair struct {
	src, dst domain.TypeID
}

// MaterialConfig wires a MaterialRegistry.
type MaterialConfig struct {
	Logger *slog.Logger
	// Scheduler runs type tasks and parallel initialization. Nil falls
	// back to synchronous execution.
	Scheduler *sched.Scheduler
	// Memory receives per-type channel allocation and migration calls.
	Memory domain.MemoryManager
	// Compression receives per-type compression profiles.
	Compression domain.CompressionRegistrar
	// Versions, when set, has the material's transactional version bumped
	// on every schema change so in-flight transactions observe it.
	Versions *txn.VersionTable
	// Cache is the NUMA read cache; nil builds one from the detected
	// topology.
	Cache *DomainCache
}

// MaterialRegistry is the authoritative catalog of material types:
// single-inheritance records, directed relationships with compatibility
// scores, capability masks, and a global schema version used for
// migration. Records published to the versioned table are immutable:
// mutation paths hold the registry spin lock, clone the current record,
// modify the clone, and publish it with Put. Readers therefore go
// straight to the table without the lock and can never observe a record
// mid-mutation. The name and relationship indices are guarded by the
// spin lock on both sides.
type MaterialRegistry struct {
	logger      *slog.Logger
	scheduler   *sched.Scheduler
	memory      domain.MemoryManager
	compression domain.CompressionRegistrar
	versions    *txn.VersionTable
	cache       *DomainCache

	initialized atomic.Bool

	lock         locking.SpinLock
	table        *VersionedTable[*domain.TypeRecord]
	byName       map[string]domain.TypeID
	rels         map[domain.RelationshipID]*domain.Relationship
	relBySource  map[domain.TypeID][]domain.RelationshipID
	relByTarget  map[domain.TypeID][]domain.RelationshipID
	relByPair    map[relPair]domain.RelationshipID
	initializers map[domain.TypeID]TypeInitializer

	nextType locking.Counter
	nextRel  locking.Counter
}

// NewMaterialRegistry builds an uninitialized registry; call Initialize
// before registering types.
func NewMaterialRegistry(cfg MaterialConfig) *MaterialRegistry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Cache == nil {
		cfg.Cache = NewDomainCache(nil)
	}
	return &MaterialRegistry{
		logger:       cfg.Logger,
		scheduler:    cfg.Scheduler,
		memory:       cfg.Memory,
		compression:  cfg.Compression,
		versions:     cfg.Versions,
		cache:        cfg.Cache,
		table:        NewVersionedTable[*domain.TypeRecord](),
		byName:       make(map[string]domain.TypeID),
		rels:         make(map[domain.RelationshipID]*domain.Relationship),
		relBySource:  make(map[domain.TypeID][]domain.RelationshipID),
		relByTarget:  make(map[domain.TypeID][]domain.RelationshipID),
		relByPair:    make(map[relPair]domain.RelationshipID),
		initializers: make(map[domain.TypeID]TypeInitializer),
	}
}

// Initialize marks the registry ready. Registration before this point
// fails with the invalid ID.
func (r *MaterialRegistry) Initialize() error {
	if !r.initialized.CompareAndSwap(false, true) {
		return fmt.Errorf("material registry already initialized")
	}
	return nil
}

// Shutdown clears the registry and marks it uninitialized.
func (r *MaterialRegistry) Shutdown() {
	r.Clear()
	r.initialized.Store(false)
}

// GetRegistryType identifies this registry in the shared registry
// interface.
func (r *MaterialRegistry) GetRegistryType() string { return RegistryTypeMaterial }

// RegisterType adds a type under the given name. It returns the invalid
// ID, with a logged message, when the registry is not initialized, the
// name is empty, or the named parent does not exist. Registering an
// already-registered name is an idempotent no-op returning the original
// ID.
func (r *MaterialRegistry) RegisterType(name string, priority int32, parentName string) domain.TypeID {
	if !r.initialized.Load() {
		r.logger.Error("register type failed", "name", name, "error", domain.ErrNotInitialized)
		return domain.InvalidTypeID
	}
	if name == "" {
		r.logger.Error("register type failed", "error", domain.ErrEmptyName)
		return domain.InvalidTypeID
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if existing, ok := r.byName[name]; ok {
		r.logger.Warn("type already registered", "name", name, "id", existing)
		return existing
	}
	var parentID domain.TypeID
	if parentName != "" {
		id, ok := r.byName[parentName]
		if !ok {
			r.logger.Error("register type failed", "name", name, "parent", parentName, "error", domain.ErrUnknownType)
			return domain.InvalidTypeID
		}
		parentID = id
	}

	rec := &domain.TypeRecord{
		ID:            domain.TypeID(r.nextType.Increment()),
		Name:          name,
		ParentID:      parentID,
		Priority:      priority,
		SchemaVersion: 1,
		Hardness:      domain.DefaultHardness,
		Resistance:    domain.DefaultResistance,
		Value:         domain.DefaultValue,
		Properties:    make(map[string]domain.Property),
		MemoryChannel: -1,
		RegisteredAt:  time.Now().UTC(),
	}
	if r.memory != nil {
		channel, err := r.memory.AllocateTypeChannel(rec.ID, name)
		if err != nil {
			r.logger.Warn("memory channel allocation failed", "name", name, "id", rec.ID, "error", err)
		} else {
			rec.MemoryChannel = channel
		}
	}

	// Both indices update under the registry lock; readers never observe
	// the name without the record or vice versa.
	r.byName[name] = rec.ID
	r.table.Put(uint32(rec.ID), rec)
	r.bumpMaterial(rec.ID)
	return rec.ID
}

func (r *MaterialRegistry) bumpMaterial(id domain.TypeID) {
	if r.versions != nil {
		r.versions.Bump(domain.MaterialRef(id))
	}
}

// RegisterRelationship records a directed compatibility edge between two
// registered names. Scores are clamped to [0,1]. An existing (source,
// target) pair is an idempotent no-op returning the original ID; unknown
// endpoints fail with the invalid ID.
func (r *MaterialRegistry) RegisterRelationship(sourceName, targetName string, score float64, canBlend, bidirectional bool) domain.RelationshipID {
	if !r.initialized.Load() {
		r.logger.Error("register relationship failed", "error", domain.ErrNotInitialized)
		return domain.InvalidRelationshipID
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	src, ok := r.byName[sourceName]
	if !ok {
		r.logger.Error("register relationship failed", "source", sourceName, "error", domain.ErrUnknownType)
		return domain.InvalidRelationshipID
	}
	dst, ok := r.byName[targetName]
	if !ok {
		r.logger.Error("register relationship failed", "target", targetName, "error", domain.ErrUnknownType)
		return domain.InvalidRelationshipID
	}
	if existing, ok := r.relByPair[relPair{src, dst}]; ok {
		r.logger.Warn("relationship already registered", "source", sourceName, "target", targetName, "id", existing)
		return existing
	}

	rel := &domain.Relationship{
		ID:            domain.RelationshipID(r.nextRel.Increment()),
		SourceID:      src,
		TargetID:      dst,
		Score:         domain.ClampScore(score),
		CanBlend:      canBlend,
		Bidirectional: bidirectional,
		SchemaVersion: 1,
	}
	r.rels[rel.ID] = rel
	r.relByPair[relPair{src, dst}] = rel.ID
	r.relBySource[src] = append(r.relBySource[src], rel.ID)
	r.relByTarget[dst] = append(r.relByTarget[dst], rel.ID)
	return rel.ID
}

// GetRelationship returns the directed relationship from source to
// target, falling back to the reverse edge when it is bidirectional.
func (r *MaterialRegistry) GetRelationship(source, target domain.TypeID) (domain.Relationship, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if id, ok := r.relByPair[relPair{source, target}]; ok {
		return *r.rels[id], true
	}
	if id, ok := r.relByPair[relPair{target, source}]; ok {
		if rel := r.rels[id]; rel.Bidirectional {
			return *rel, true
		}
	}
	return domain.Relationship{}, false
}

// RelationshipsFor returns every relationship touching the type from
// either side.
func (r *MaterialRegistry) RelationshipsFor(id domain.TypeID) []domain.Relationship {
	r.lock.Lock()
	defer r.lock.Unlock()
	seen := make(map[domain.RelationshipID]struct{})
	var out []domain.Relationship
	for _, relID := range r.relBySource[id] {
		seen[relID] = struct{}{}
		out = append(out, *r.rels[relID])
	}
	for _, relID := range r.relByTarget[id] {
		if _, dup := seen[relID]; dup {
			continue
		}
		out = append(out, *r.rels[relID])
	}
	return out
}

// GetTypeInfo returns a copy of the record for id.
func (r *MaterialRegistry) GetTypeInfo(id domain.TypeID) (*domain.TypeRecord, bool) {
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// GetTypeInfoByName resolves a name and returns a copy of its record.
func (r *MaterialRegistry) GetTypeInfoByName(name string) (*domain.TypeRecord, bool) {
	r.lock.Lock()
	id, ok := r.byName[name]
	r.lock.Unlock()
	if !ok {
		return nil, false
	}
	return r.GetTypeInfo(id)
}

// GetTypeID resolves a registered name.
func (r *MaterialRegistry) GetTypeID(name string) (domain.TypeID, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	id, ok := r.byName[name]
	return id, ok
}

// GetTypeCapabilities returns the type's capability mask.
func (r *MaterialRegistry) GetTypeCapabilities(id domain.TypeID) (domain.CapabilityFlags, bool) {
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return domain.CapabilityNone, false
	}
	return rec.Capabilities, true
}

// GetTypeVersion returns the type's schema version.
func (r *MaterialRegistry) GetTypeVersion(id domain.TypeID) (uint32, bool) {
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return 0, false
	}
	return rec.SchemaVersion, true
}

// SetTypeVersion updates a type's schema version. When migrateInstanceData
// is set and the type owns an allocated memory channel, instance-data
// migration is delegated to the memory manager and its failure becomes
// this call's failure — even though the version bump itself already
// happened, a partial success the caller must be able to observe.
func (r *MaterialRegistry) SetTypeVersion(id domain.TypeID, newVersion uint32, migrateInstanceData bool) bool {
	if !r.initialized.Load() {
		r.logger.Error("set type version failed", "id", id, "error", domain.ErrNotInitialized)
		return false
	}
	r.lock.Lock()
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		r.lock.Unlock()
		r.logger.Error("set type version failed", "id", id, "error", domain.ErrUnknownType)
		return false
	}
	oldVersion := rec.SchemaVersion
	next := rec.Clone()
	next.SchemaVersion = newVersion
	r.table.Put(uint32(id), next)
	r.bumpMaterial(id)
	channel, hasChannel := next.MemoryChannel, next.HasMemoryChannel()
	r.lock.Unlock()

	if migrateInstanceData && hasChannel && r.memory != nil {
		if err := r.memory.MigrateTypeData(id, channel, oldVersion, newVersion); err != nil {
			merr := domain.MigrationError{TypeID: id, FromVersion: oldVersion, ToVersion: newVersion, Err: err}
			r.logger.Error("instance data migration failed", "id", id, "error", merr)
			return false
		}
	}
	return true
}

// SetCapabilities replaces a type's capability mask.
func (r *MaterialRegistry) SetCapabilities(id domain.TypeID, caps domain.CapabilityFlags) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return false
	}
	next := rec.Clone()
	next.Capabilities = caps
	r.table.Put(uint32(id), next)
	r.bumpMaterial(id)
	return true
}

// SetProperty adds or replaces a named property on a type.
func (r *MaterialRegistry) SetProperty(id domain.TypeID, p domain.Property) bool {
	if p.Name == "" {
		r.logger.Error("set property failed", "id", id, "error", domain.ErrEmptyName)
		return false
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return false
	}
	next := rec.Clone()
	next.Properties[p.Name] = p
	r.table.Put(uint32(id), next)
	r.bumpMaterial(id)
	return true
}

// SetBaselines overwrites the type's scalar multipliers.
func (r *MaterialRegistry) SetBaselines(id domain.TypeID, hardness, resistance, value float64) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return false
	}
	next := rec.Clone()
	next.Hardness, next.Resistance, next.Value = hardness, resistance, value
	r.table.Put(uint32(id), next)
	r.bumpMaterial(id)
	return true
}

// SetRelatedTypes declares explicit dependencies consumed by phased
// initialization ordering, in addition to the parent edge.
func (r *MaterialRegistry) SetRelatedTypes(id domain.TypeID, related []domain.TypeID) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return false
	}
	next := rec.Clone()
	next.RelatedTypeIDs = append([]domain.TypeID(nil), related...)
	r.table.Put(uint32(id), next)
	return true
}

// InheritPropertiesFromParent copies every inheritable property from
// parent to child, skipping properties the child already holds unless
// override is requested. The child's capability mask becomes the union of
// both, and baseline multipliers are copied only where the child still
// holds the defaults.
func (r *MaterialRegistry) InheritPropertiesFromParent(childID, parentID domain.TypeID, overrideExisting bool) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	cur, ok := r.table.Get(uint32(childID))
	if !ok {
		r.logger.Error("inherit failed", "child", childID, "error", domain.ErrUnknownType)
		return false
	}
	parent, ok := r.table.Get(uint32(parentID))
	if !ok {
		r.logger.Error("inherit failed", "parent", parentID, "error", domain.ErrUnknownType)
		return false
	}

	child := cur.Clone()
	for name, prop := range parent.Properties {
		if !prop.Inheritable {
			continue
		}
		if _, exists := child.Properties[name]; exists && !overrideExisting {
			continue
		}
		child.Properties[name] = prop
	}
	child.Capabilities = child.Capabilities.Union(parent.Capabilities)
	if child.Hardness == domain.DefaultHardness {
		child.Hardness = parent.Hardness
	}
	if child.Resistance == domain.DefaultResistance {
		child.Resistance = parent.Resistance
	}
	if child.Value == domain.DefaultValue {
		child.Value = parent.Value
	}
	r.table.Put(uint32(childID), child)
	r.bumpMaterial(childID)
	return true
}

// IsDerivedFrom walks the parent chain from derived toward the root. A
// type is trivially derived from itself. The walk is bounded by the table
// size, so an (incorrect) cyclic chain terminates, and any dangling
// parent reference yields false.
func (r *MaterialRegistry) IsDerivedFrom(derived, base domain.TypeID) bool {
	if derived == base {
		_, ok := r.table.Get(uint32(derived))
		return ok
	}
	limit := r.table.Len()
	cur := derived
	for steps := 0; steps <= limit; steps++ {
		rec, ok := r.table.Get(uint32(cur))
		if !ok {
			return false
		}
		if rec.ParentID == 0 {
			return false
		}
		if rec.ParentID == base {
			return true
		}
		cur = rec.ParentID
	}
	return false
}

// GetTypeDependencies returns the types that must initialize before id:
// its parent and its explicitly related types.
func (r *MaterialRegistry) GetTypeDependencies(id domain.TypeID) []domain.TypeID {
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return nil
	}
	var deps []domain.TypeID
	if rec.ParentID != 0 {
		deps = append(deps, rec.ParentID)
	}
	deps = append(deps, rec.RelatedTypeIDs...)
	return deps
}

// TypeCount returns the number of registered types.
func (r *MaterialRegistry) TypeCount() int { return r.table.Len() }

// TableVersion exposes the global structural version consumed by the
// NUMA cache.
func (r *MaterialRegistry) TableVersion() uint64 { return r.table.Version() }

// GetTypeInfoNUMAOptimized consults the calling domain's cache first,
// validated against the table's global version; a miss or stale entry
// falls back to the authoritative lookup and repopulates the cache.
func (r *MaterialRegistry) GetTypeInfoNUMAOptimized(domainID int, id domain.TypeID) (*domain.TypeRecord, bool) {
	if rec, ok := r.cache.Get(domainID, id, r.table.Version()); ok {
		return rec, true
	}
	rec, version, ok := r.table.GetVersioned(uint32(id))
	if !ok {
		return nil, false
	}
	clone := rec.Clone()
	r.cache.Put(domainID, id, clone, version)
	return clone, true
}

// OptimizePlacement prewarms each type's record in the domain that reads
// it most, migrating hot types toward their dominant readers.
func (r *MaterialRegistry) OptimizePlacement() {
	type hot struct {
		id  domain.TypeID
		dom int
	}
	var hots []hot
	r.table.Range(func(id uint32, _ *domain.TypeRecord) bool {
		if dom, n := r.cache.HottestDomain(domain.TypeID(id)); dom >= 0 && n > 0 {
			hots = append(hots, hot{id: domain.TypeID(id), dom: dom})
		}
		return true
	})
	for _, h := range hots {
		if rec, version, ok := r.table.GetVersioned(uint32(h.id)); ok {
			r.cache.Prewarm(h.dom, h.id, rec.Clone(), version)
		}
	}
}

// RegisterTypeInitializer installs the one-time setup hook run for the
// type during phased initialization.
func (r *MaterialRegistry) RegisterTypeInitializer(id domain.TypeID, fn TypeInitializer) {
	if fn == nil {
		return
	}
	r.lock.Lock()
	r.initializers[id] = fn
	r.lock.Unlock()
}

// ScheduleTypeTask submits work associated with a type through the
// scheduler, tagging it with the type's name for metrics. Without a
// scheduler the work runs synchronously.
func (r *MaterialRegistry) ScheduleTypeTask(id domain.TypeID, work sched.Work, cfg domain.TaskConfig) (domain.TaskID, error) {
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return domain.InvalidTaskID, fmt.Errorf("schedule type task: %w (id %d)", domain.ErrUnknownType, id)
	}
	if cfg.Kind == "" {
		cfg.Kind = RegistryTypeMaterial + ":" + rec.Name
	}
	if r.scheduler == nil {
		if err := work(context.Background()); err != nil {
			return domain.InvalidTaskID, err
		}
		return domain.InvalidTaskID, nil
	}
	return r.scheduler.Schedule(work, cfg, "type task "+rec.Name)
}

// PreInitializeTypes reserves storage ahead of bulk registration.
func (r *MaterialRegistry) PreInitializeTypes(expected int) {
	if expected <= 0 {
		return
	}
	r.lock.Lock()
	if len(r.byName) == 0 {
		r.byName = make(map[string]domain.TypeID, expected)
	}
	r.lock.Unlock()
}

// initOrder returns the type IDs in dependency order: parents and
// related types ahead of their dependents. Cycles are broken by ID order
// with a logged warning; Validate reports them as errors.
func (r *MaterialRegistry) initOrder() []domain.TypeID {
	indegree := make(map[domain.TypeID]int)
	dependents := make(map[domain.TypeID][]domain.TypeID)
	r.table.Range(func(id uint32, rec *domain.TypeRecord) bool {
		tid := domain.TypeID(id)
		if _, ok := indegree[tid]; !ok {
			indegree[tid] = 0
		}
		for _, dep := range r.GetTypeDependencies(tid) {
			if _, ok := r.table.Get(uint32(dep)); !ok {
				continue
			}
			indegree[tid]++
			dependents[dep] = append(dependents[dep], tid)
		}
		return true
	})

	ready := make([]domain.TypeID, 0, len(indegree))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]domain.TypeID, 0, len(indegree))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
	}

	if len(order) < len(indegree) {
		var rest []domain.TypeID
		inOrder := make(map[domain.TypeID]struct{}, len(order))
		for _, id := range order {
			inOrder[id] = struct{}{}
		}
		for id := range indegree {
			if _, ok := inOrder[id]; !ok {
				rest = append(rest, id)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
		r.logger.Warn("dependency cycle in type graph", "unordered", len(rest))
		order = append(order, rest...)
	}
	return order
}

// ParallelInitializeTypes runs every registered initializer in dependency
// order. When parallel execution is requested, the type count exceeds the
// threshold and a scheduler is wired, initializers fan out as scheduler
// tasks whose dependency edges mirror the type graph; otherwise they run
// sequentially on the calling goroutine.
func (r *MaterialRegistry) ParallelInitializeTypes(ctx context.Context, parallel bool) error {
	if !r.initialized.Load() {
		return domain.ErrNotInitialized
	}
	order := r.initOrder()

	if !parallel || r.scheduler == nil || len(order) <= parallelInitThreshold {
		for _, id := range order {
			if err := r.runInitializer(ctx, id); err != nil {
				return err
			}
		}
		return nil
	}

	taskFor := make(map[domain.TypeID]domain.TaskID, len(order))
	taskIDs := make([]domain.TaskID, 0, len(order))
	for _, id := range order {
		id := id
		var deps []domain.TaskDependency
		for _, dep := range r.GetTypeDependencies(id) {
			if tid, ok := taskFor[dep]; ok {
				deps = append(deps, domain.TaskDependency{TaskID: tid})
			}
		}
		tid, err := r.scheduler.Schedule(func(taskCtx context.Context) error {
			return r.runInitializer(taskCtx, id)
		}, domain.TaskConfig{
			Priority:     domain.PriorityHigh,
			Kind:         "type_init",
			Dependencies: deps,
			NUMADomain:   -1,
		}, fmt.Sprintf("init type %d", id))
		if err != nil {
			return fmt.Errorf("schedule init for type %d: %w", id, err)
		}
		taskFor[id] = tid
		taskIDs = append(taskIDs, tid)
	}
	if err := r.scheduler.WaitForTasks(taskIDs, 0); err != nil {
		return err
	}
	for _, id := range order {
		if status, _ := r.scheduler.GetTaskStatus(taskFor[id]); status != domain.TaskCompleted {
			return fmt.Errorf("type %d initialization %s", id, status)
		}
	}
	return nil
}

func (r *MaterialRegistry) runInitializer(ctx context.Context, id domain.TypeID) error {
	r.lock.Lock()
	fn := r.initializers[id]
	r.lock.Unlock()
	if fn == nil {
		return nil
	}
	rec, ok := r.table.Get(uint32(id))
	if !ok {
		return fmt.Errorf("initialize type %d: %w", id, domain.ErrUnknownType)
	}
	// The initializer works on a private clone; the result is published
	// under the registry lock like every other mutation.
	next := rec.Clone()
	if err := fn(ctx, next); err != nil {
		return fmt.Errorf("initialize type %d: %w", id, err)
	}
	r.lock.Lock()
	r.table.Put(uint32(id), next)
	r.lock.Unlock()
	return nil
}

// PostInitializeTypes performs the final cross-type validation pass,
// returning every detected inconsistency joined into one error.
func (r *MaterialRegistry) PostInitializeTypes(ctx context.Context) error {
	if errs := r.Validate(ctx); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate aggregates every detected inconsistency instead of stopping at
// the first: dangling or cyclic parent chains, relationship endpoints
// that are not registered, out-of-range scores, and name-index drift.
func (r *MaterialRegistry) Validate(_ context.Context) []error {
	r.lock.Lock()
	defer r.lock.Unlock()

	var errs []error
	limit := r.table.Len()
	r.table.Range(func(id uint32, rec *domain.TypeRecord) bool {
		tid := domain.TypeID(id)
		if rec.ParentID != 0 {
			if _, ok := r.table.Get(uint32(rec.ParentID)); !ok {
				errs = append(errs, fmt.Errorf("type %q (%d): dangling parent %d", rec.Name, tid, rec.ParentID))
			}
		}
		cur := rec.ParentID
		for steps := 0; cur != 0 && steps <= limit; steps++ {
			if cur == tid {
				errs = append(errs, fmt.Errorf("type %q (%d): cyclic parent chain", rec.Name, tid))
				break
			}
			parent, ok := r.table.Get(uint32(cur))
			if !ok {
				break
			}
			cur = parent.ParentID
		}
		if mapped, ok := r.byName[rec.Name]; !ok || mapped != tid {
			errs = append(errs, fmt.Errorf("type %q (%d): name index drift", rec.Name, tid))
		}
		return true
	})
	for id, rel := range r.rels {
		if _, ok := r.table.Get(uint32(rel.SourceID)); !ok {
			errs = append(errs, fmt.Errorf("relationship %d: unknown source %d", id, rel.SourceID))
		}
		if _, ok := r.table.Get(uint32(rel.TargetID)); !ok {
			errs = append(errs, fmt.Errorf("relationship %d: unknown target %d", id, rel.TargetID))
		}
		if rel.Score < 0 || rel.Score > 1 {
			errs = append(errs, fmt.Errorf("relationship %d: score %v out of range", id, rel.Score))
		}
	}
	return errs
}

// Clear removes every type and relationship, releasing allocated memory
// channels and invalidating the NUMA cache. The registry stays
// initialized.
func (r *MaterialRegistry) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.memory != nil {
		r.table.Range(func(id uint32, rec *domain.TypeRecord) bool {
			if rec.HasMemoryChannel() {
				if err := r.memory.ReleaseTypeChannel(domain.TypeID(id), rec.MemoryChannel); err != nil {
					r.logger.Warn("release memory channel failed", "id", id, "error", err)
				}
			}
			return true
		})
	}
	r.table.Clear()
	r.byName = make(map[string]domain.TypeID)
	r.rels = make(map[domain.RelationshipID]*domain.Relationship)
	r.relBySource = make(map[domain.TypeID][]domain.RelationshipID)
	r.relByTarget = make(map[domain.TypeID][]domain.RelationshipID)
	r.relByPair = make(map[relPair]domain.RelationshipID)
	r.initializers = make(map[domain.TypeID]TypeInitializer)
	r.cache.Invalidate()
}

// RegisterCompressionProfile forwards a per-type compression profile to
// the compression collaborator.
func (r *MaterialRegistry) RegisterCompressionProfile(id domain.TypeID, profile domain.CompressionProfile) error {
	if _, ok := r.table.Get(uint32(id)); !ok {
		return fmt.Errorf("compression profile: %w (id %d)", domain.ErrUnknownType, id)
	}
	if r.compression == nil {
		return nil
	}
	return r.compression.RegisterTypeCompression(id, profile)
}
