package hibernate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AgenticGames/miningspice/internal/compress"
	"github.com/AgenticGames/miningspice/internal/sched"
	"github.com/AgenticGames/miningspice/internal/snapshot"
	"github.com/AgenticGames/miningspice/internal/txn"
	"github.com/AgenticGames/miningspice/pkg/domain"
)

// Config wires a hibernation Manager.
type Config struct {
	Store   snapshot.Store
	Catalog Catalog
	Policy  *compress.Policy
	Logger  *slog.Logger
	// Scheduler runs background hibernation sweeps. Nil disables
	// HibernateAsync.
	Scheduler *sched.Scheduler
	// Versions, when set, has the zone's transactional version bumped on
	// hibernate and awaken so concurrent transactions observe residency
	// changes.
	Versions *txn.VersionTable
}

// Manager moves zone images between hot memory and the snapshot store.
// Hibernate compresses and evicts, Awaken restores and drops the stored
// image. The catalog is written after the store so a crash between the
// two leaves an orphaned snapshot rather than a dangling catalog entry.
type Manager struct {
	store     snapshot.Store
	catalog   Catalog
	policy    *compress.Policy
	logger    *slog.Logger
	scheduler *sched.Scheduler
	versions  *txn.VersionTable
}

// New builds a Manager. Store and Catalog are required; a nil Policy uses
// the default tier profiles.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("hibernate: snapshot store required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("hibernate: catalog required")
	}
	if cfg.Policy == nil {
		cfg.Policy = compress.NewPolicy(nil, cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		policy:    cfg.Policy,
		logger:    cfg.Logger,
		scheduler: cfg.Scheduler,
		versions:  cfg.Versions,
	}, nil
}

// tier maps the configured backend to a compression temperature: object
// storage is cold, everything local is warm.
func (m *Manager) tier() compress.Tier {
	if m.store.Driver() == snapshot.DriverS3 {
		return compress.TierCold
	}
	return compress.TierWarm
}

// Hibernate compresses a zone image, stores it, and records it in the
// catalog. The material type, when known, selects any per-type
// compression override.
func (m *Manager) Hibernate(ctx context.Context, kind string, zone domain.ZoneID, material domain.TypeID, schemaVersion uint32, data []byte) (CatalogEntry, error) {
	tier := m.tier()
	payload, codec, err := m.policy.Pack(material, tier, data)
	if err != nil {
		return CatalogEntry{}, fmt.Errorf("hibernate %s/%d: %w", kind, zone, err)
	}

	key := snapshot.ZoneKey(kind, zone)
	meta := snapshot.Meta{
		Codec:         codec,
		Kind:          kind,
		Zone:          zone,
		RawSize:       int64(len(data)),
		SchemaVersion: schemaVersion,
	}
	info, err := m.store.Put(ctx, key, bytes.NewReader(payload), meta)
	if err != nil {
		return CatalogEntry{}, fmt.Errorf("hibernate %s/%d: store: %w", kind, zone, err)
	}

	entry := CatalogEntry{
		Kind:          kind,
		Zone:          zone,
		Key:           key,
		Codec:         codec,
		Driver:        string(m.store.Driver()),
		RawSize:       int64(len(data)),
		StoredSize:    info.Size,
		ETag:          info.ETag,
		SchemaVersion: schemaVersion,
		HibernatedAt:  time.Now().UTC(),
	}
	if err := m.catalog.Record(ctx, entry); err != nil {
		return CatalogEntry{}, fmt.Errorf("hibernate %s/%d: catalog: %w", kind, zone, err)
	}
	if m.versions != nil {
		m.versions.Bump(domain.ZoneRef(zone))
	}
	m.logger.Info("zone hibernated",
		"kind", kind, "zone", zone, "codec", codec,
		"raw_bytes", entry.RawSize, "stored_bytes", entry.StoredSize, "tier", tier.String())
	return entry, nil
}

// Awaken restores a hibernated zone image and drops its snapshot and
// catalog entry. A zone with no stored image returns (nil, false, nil) so
// callers can tell "never hibernated" apart from a storage failure.
func (m *Manager) Awaken(ctx context.Context, kind string, zone domain.ZoneID) ([]byte, bool, error) {
	entry, ok, err := m.catalog.Lookup(ctx, kind, zone)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	_, rc, err := m.store.Get(ctx, entry.Key)
	if err != nil {
		return nil, false, fmt.Errorf("awaken %s/%d: store: %w", kind, zone, err)
	}
	payload, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, false, fmt.Errorf("awaken %s/%d: read: %w", kind, zone, err)
	}

	data, err := compress.Unpack(entry.Codec, payload)
	if err != nil {
		return nil, false, fmt.Errorf("awaken %s/%d: %w", kind, zone, err)
	}
	if int64(len(data)) != entry.RawSize {
		return nil, false, fmt.Errorf("awaken %s/%d: size mismatch, got %d want %d", kind, zone, len(data), entry.RawSize)
	}

	// Drop the stored image only after a successful restore.
	if _, err := m.store.Delete(ctx, entry.Key); err != nil {
		m.logger.Warn("orphaned snapshot after awaken", "key", entry.Key, "error", err)
	}
	if _, err := m.catalog.Remove(ctx, kind, zone); err != nil {
		return nil, false, fmt.Errorf("awaken %s/%d: catalog: %w", kind, zone, err)
	}
	if m.versions != nil {
		m.versions.Bump(domain.ZoneRef(zone))
	}
	m.logger.Info("zone awakened", "kind", kind, "zone", zone, "bytes", len(data))
	return data, true, nil
}

// IsHibernated reports whether a zone currently has a stored image.
func (m *Manager) IsHibernated(ctx context.Context, kind string, zone domain.ZoneID) (bool, error) {
	_, ok, err := m.catalog.Lookup(ctx, kind, zone)
	return ok, err
}

// Drop discards a hibernated zone without restoring it.
func (m *Manager) Drop(ctx context.Context, kind string, zone domain.ZoneID) (bool, error) {
	entry, ok, err := m.catalog.Lookup(ctx, kind, zone)
	if err != nil || !ok {
		return false, err
	}
	if _, err := m.store.Delete(ctx, entry.Key); err != nil {
		return false, fmt.Errorf("drop %s/%d: store: %w", kind, zone, err)
	}
	return m.catalog.Remove(ctx, kind, zone)
}

// ListHibernated returns the catalog entries for a zone kind.
func (m *Manager) ListHibernated(ctx context.Context, kind string) ([]CatalogEntry, error) {
	return m.catalog.ListKind(ctx, kind)
}

// HibernateAsync submits a hibernation through the scheduler at low
// priority so eviction never competes with foreground work.
func (m *Manager) HibernateAsync(kind string, zone domain.ZoneID, material domain.TypeID, schemaVersion uint32, data []byte) (domain.TaskID, error) {
	if m.scheduler == nil {
		return domain.InvalidTaskID, fmt.Errorf("hibernate: no scheduler configured")
	}
	cfg := domain.TaskConfig{
		Priority:   domain.PriorityLow,
		Kind:       "hibernate",
		MaxRetries: 2,
		RetryDelay: 250 * time.Millisecond,
		NUMADomain: -1,
	}
	return m.scheduler.Schedule(func(ctx context.Context) error {
		_, err := m.Hibernate(ctx, kind, zone, material, schemaVersion, data)
		return err
	}, cfg, fmt.Sprintf("hibernate %s/%d", kind, zone))
}

// Sweep drops hibernated images of a kind older than retention,
// reclaiming storage for zones the world has abandoned. It returns the
// zones it dropped. Failures on individual zones are logged and skipped
// so one bad entry cannot stall the scan.
func (m *Manager) Sweep(ctx context.Context, kind string, retention time.Duration) ([]domain.ZoneID, error) {
	entries, err := m.catalog.ListKind(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("sweep %s: %w", kind, err)
	}
	cutoff := time.Now().Add(-retention)
	var dropped []domain.ZoneID
	for _, e := range entries {
		if !e.HibernatedAt.Before(cutoff) {
			continue
		}
		ok, err := m.Drop(ctx, kind, e.Zone)
		if err != nil {
			m.logger.Warn("sweep: drop failed", "kind", kind, "zone", e.Zone, "error", err)
			continue
		}
		if ok {
			dropped = append(dropped, e.Zone)
		}
	}
	if len(dropped) > 0 {
		m.logger.Info("sweep reclaimed zones", "kind", kind, "count", len(dropped))
	}
	return dropped, nil
}

// SweepAsync runs Sweep through the scheduler at low priority.
func (m *Manager) SweepAsync(kind string, retention time.Duration) (domain.TaskID, error) {
	if m.scheduler == nil {
		return domain.InvalidTaskID, fmt.Errorf("sweep: no scheduler configured")
	}
	cfg := domain.TaskConfig{Priority: domain.PriorityLow, Kind: "hibernate_sweep", NUMADomain: -1}
	return m.scheduler.Schedule(func(ctx context.Context) error {
		_, err := m.Sweep(ctx, kind, retention)
		return err
	}, cfg, "sweep "+kind)
}
