// Package core assembles the engine: topology, scheduler, transaction
// manager, registries, compression, snapshots, and hibernation, built
// from one configuration and torn down in reverse. Everything is an
// explicit field on Core; there is no package-level state.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AgenticGames/miningspice/internal/compress"
	"github.com/AgenticGames/miningspice/internal/config"
	"github.com/AgenticGames/miningspice/internal/hibernate"
	"github.com/AgenticGames/miningspice/internal/locking"
	"github.com/AgenticGames/miningspice/internal/registry"
	"github.com/AgenticGames/miningspice/internal/sched"
	"github.com/AgenticGames/miningspice/internal/snapshot"
	"github.com/AgenticGames/miningspice/internal/txn"
	"github.com/AgenticGames/miningspice/pkg/domain"
	"github.com/AgenticGames/miningspice/pkg/pluginapi"
	"github.com/AgenticGames/miningspice/pkg/service"
)

// Options tunes construction beyond the configuration file.
type Options struct {
	// LogWriter overrides the logger destination, for tests.
	LogWriter io.Writer
	// Memory receives per-type channel calls; nil disables channels.
	Memory domain.MemoryManager
}

// Core is the engine's root object. Construct with New, start with
// Initialize, stop with Shutdown.
type Core struct {
	cfg    config.Config
	logger *slog.Logger

	topo      *locking.Topology
	scheduler *sched.Scheduler
	zoneLocks *locking.ZoneLockTable
	txns      *txn.Manager

	materials *registry.MaterialRegistry
	zones     *registry.ZoneKindRegistry

	policy     *compress.Policy
	snapshots  snapshot.Store
	catalogDB  hibernate.Catalog
	hibernator *hibernate.Manager

	services *service.Locator
	plugins  *PluginCatalog

	installed   []pluginapi.Plugin
	initialized bool
}

// New wires a Core from configuration. Nothing runs until Initialize.
func New(ctx context.Context, cfg config.Config, opts Options) (*Core, error) {
	logger := NewLogger(cfg.Logging, opts.LogWriter)

	var topo *locking.Topology
	if cfg.Scheduler.NUMAAware {
		topo = locking.DetectTopology()
	} else {
		topo = locking.SingleDomainTopology()
	}

	var schedMetrics sched.MetricsRecorder
	var txnMetrics txn.MetricsRecorder
	switch {
	case cfg.Metrics.Prometheus:
		sm, err := sched.NewPrometheusMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("core: scheduler metrics: %w", err)
		}
		tm, err := txn.NewPrometheusMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("core: txn metrics: %w", err)
		}
		schedMetrics, txnMetrics = sm, tm
	case cfg.Metrics.Expvar:
		// Generated name: a process may assemble more than one Core (tests
		// do) and expvar panics on duplicate publication.
		schedMetrics = sched.NewExpvarMetrics("")
	}

	scheduler := sched.New(sched.Config{
		Workers:  cfg.Scheduler.Workers,
		Topology: topo,
		Logger:   logger.With("subsystem", "sched"),
		Metrics:  schedMetrics,
	})

	zoneLocks := locking.NewZoneLockTable()
	txns := txn.NewManager(txn.Config{
		ZoneLocks:         zoneLocks,
		FastPathThreshold: cfg.Txn.FastPathThreshold,
		Logger:            logger.With("subsystem", "txn"),
		Metrics:           txnMetrics,
	})

	tierProfiles := make(map[compress.Tier]domain.CompressionProfile)
	for name, profile := range cfg.Compression {
		switch name {
		case "hot":
			tierProfiles[compress.TierHot] = profile
		case "warm":
			tierProfiles[compress.TierWarm] = profile
		case "cold":
			tierProfiles[compress.TierCold] = profile
		default:
			logger.Warn("unknown compression tier in config", "tier", name)
		}
	}
	policy := compress.NewPolicy(tierProfiles, logger)

	materials := registry.NewMaterialRegistry(registry.MaterialConfig{
		Logger:      logger.With("subsystem", "registry"),
		Scheduler:   scheduler,
		Memory:      opts.Memory,
		Compression: policy,
		Versions:    txns.Versions(),
		Cache:       registry.NewDomainCache(topo),
	})
	zones := registry.NewZoneKindRegistry(logger.With("subsystem", "registry"))

	store, err := snapshot.Open(ctx, snapshot.Options{
		Driver: snapshot.Driver(cfg.Snapshot.Driver),
		FSRoot: cfg.Snapshot.FSRoot,
		Badger: snapshot.BadgerConfig{Path: cfg.Snapshot.BadgerPath, TTL: cfg.Snapshot.BadgerTTL.Std()},
		S3: snapshot.S3Config{
			Bucket:          cfg.Snapshot.S3.Bucket,
			Region:          cfg.Snapshot.S3.Region,
			Endpoint:        cfg.Snapshot.S3.Endpoint,
			AccessKeyID:     cfg.Snapshot.S3.AccessKeyID,
			SecretAccessKey: cfg.Snapshot.S3.SecretAccessKey,
			PathStyle:       cfg.Snapshot.S3.PathStyle,
		},
	})
	if err != nil {
		scheduler.Shutdown(ctx)
		return nil, fmt.Errorf("core: snapshot store: %w", err)
	}

	catalogDB, err := openCatalog(ctx, cfg.Catalog)
	if err != nil {
		_ = store.Close()
		scheduler.Shutdown(ctx)
		return nil, fmt.Errorf("core: catalog: %w", err)
	}

	hibernator, err := hibernate.New(hibernate.Config{
		Store:     store,
		Catalog:   catalogDB,
		Policy:    policy,
		Logger:    logger.With("subsystem", "hibernate"),
		Scheduler: scheduler,
		Versions:  txns.Versions(),
	})
	if err != nil {
		_ = catalogDB.Close()
		_ = store.Close()
		scheduler.Shutdown(ctx)
		return nil, fmt.Errorf("core: %w", err)
	}

	return &Core{
		cfg:        cfg,
		logger:     logger,
		topo:       topo,
		scheduler:  scheduler,
		zoneLocks:  zoneLocks,
		txns:       txns,
		materials:  materials,
		zones:      zones,
		policy:     policy,
		snapshots:  store,
		catalogDB:  catalogDB,
		hibernator: hibernator,
		services:   service.NewLocator(logger.With("subsystem", "service")),
		plugins:    NewPluginCatalog(),
	}, nil
}

func openCatalog(ctx context.Context, cfg config.Catalog) (hibernate.Catalog, error) {
	switch cfg.Driver {
	case "memory":
		return hibernate.NewMemoryCatalog(), nil
	case "sqlite":
		return hibernate.NewSQLiteCatalog(cfg.SQLitePath)
	case "postgres":
		return hibernate.NewPostgresCatalog(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", cfg.Driver)
	}
}

// InstallPlugin records a plugin; its declarations land in the
// registries during Initialize. Installing after Initialize registers
// immediately.
func (c *Core) InstallPlugin(p pluginapi.Plugin) error {
	if p == nil {
		return fmt.Errorf("core: nil plugin")
	}
	if err := p.Register(c.plugins); err != nil {
		return fmt.Errorf("core: plugin %s: %w", p.Name(), err)
	}
	c.installed = append(c.installed, p)
	c.logger.Info("plugin installed", "name", p.Name(), "version", p.Version())
	if c.initialized {
		return c.plugins.Install(c.materials, c.zones, c.policy)
	}
	return nil
}

// Initialize brings the engine up: registries initialize, accumulated
// plugin declarations install, phased type initialization runs, and the
// final validation pass must come back clean.
func (c *Core) Initialize(ctx context.Context) error {
	if c.initialized {
		return fmt.Errorf("core: already initialized")
	}
	if err := c.materials.Initialize(); err != nil {
		return err
	}
	if err := c.zones.Initialize(); err != nil {
		return err
	}
	if err := c.plugins.Install(c.materials, c.zones, c.policy); err != nil {
		return err
	}
	if err := c.materials.ParallelInitializeTypes(ctx, true); err != nil {
		return fmt.Errorf("core: type initialization: %w", err)
	}
	if err := c.materials.PostInitializeTypes(ctx); err != nil {
		return fmt.Errorf("core: validation: %w", err)
	}
	c.initialized = true
	c.logger.Info("core initialized",
		"types", c.materials.TypeCount(),
		"zone_kinds", c.zones.KindCount(),
		"workers", c.scheduler.Workers(),
		"domains", c.topo.DomainCount())
	return nil
}

// Validate runs every registry's consistency checks and aggregates the
// findings.
func (c *Core) Validate(ctx context.Context) []error {
	return c.materials.Validate(ctx)
}

// Shutdown tears the engine down in reverse construction order.
func (c *Core) Shutdown(ctx context.Context) error {
	var errs []error
	c.services.Shutdown()
	if err := c.scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	c.materials.Shutdown()
	c.zones.Shutdown()
	if err := c.catalogDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("catalog: %w", err))
	}
	if err := c.snapshots.Close(); err != nil {
		errs = append(errs, fmt.Errorf("snapshot store: %w", err))
	}
	c.initialized = false
	return errors.Join(errs...)
}

// Accessors. Subsystems are engine-owned; callers must not close them.

func (c *Core) Logger() *slog.Logger                  { return c.logger }
func (c *Core) Scheduler() *sched.Scheduler           { return c.scheduler }
func (c *Core) Transactions() *txn.Manager            { return c.txns }
func (c *Core) Materials() *registry.MaterialRegistry { return c.materials }
func (c *Core) ZoneKinds() *registry.ZoneKindRegistry { return c.zones }
func (c *Core) Hibernator() *hibernate.Manager        { return c.hibernator }
func (c *Core) Services() *service.Locator            { return c.services }
func (c *Core) Topology() *locking.Topology           { return c.topo }
func (c *Core) ZoneLocks() *locking.ZoneLockTable     { return c.zoneLocks }
func (c *Core) CompressionPolicy() *compress.Policy   { return c.policy }
func (c *Core) Snapshots() snapshot.Store             { return c.snapshots }
func (c *Core) Plugins() []pluginapi.Plugin           { return append([]pluginapi.Plugin(nil), c.installed...) }
