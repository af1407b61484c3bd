package txn

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AgenticGames/miningspice/internal/locking"
	"github.com/AgenticGames/miningspice/pkg/domain"
)

const (
	// fastPathMinSamples is the attempt count a kind needs before its
	// conflict rate is trusted for fast-path selection.
	fastPathMinSamples = 32
	// defaultFastPathThreshold is the conflict rate below which eligible
	// kinds commit under per-resource locks.
	defaultFastPathThreshold = 0.05
	defaultBaseDelay         = time.Millisecond
)

// Config wires a Manager.
type Config struct {
	// ZoneLocks is the shared zone lock table; nil creates a private one.
	ZoneLocks *locking.ZoneLockTable
	// FastPathThreshold overrides the conflict rate bound; non-positive
	// uses the default.
	FastPathThreshold float64
	Logger            *slog.Logger
	Metrics           MetricsRecorder
}

// Manager coordinates optimistic transactions over shared zone and
// material versions. Within a single zone, committed transactions are
// linearized by the zone's lock; across independent zones the only
// conflict detection is the per-resource version check.
type Manager struct {
	versions  *VersionTable
	zoneLocks *locking.ZoneLockTable
	matLocks  *locking.ZoneLockTable
	stats     *statsTable
	owners    locking.Counter64
	threshold float64
	logger    *slog.Logger
	metrics   MetricsRecorder
}

// NewManager builds a transaction manager.
func NewManager(cfg Config) *Manager {
	if cfg.ZoneLocks == nil {
		cfg.ZoneLocks = locking.NewZoneLockTable()
	}
	if cfg.FastPathThreshold <= 0 {
		cfg.FastPathThreshold = defaultFastPathThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	return &Manager{
		versions:  NewVersionTable(),
		zoneLocks: cfg.ZoneLocks,
		matLocks:  locking.NewZoneLockTable(),
		stats:     newStatsTable(),
		threshold: cfg.FastPathThreshold,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Versions exposes the shared version table for registries that bump
// material versions through their own commit paths.
func (m *Manager) Versions() *VersionTable { return m.versions }

// Stats returns a snapshot of per-kind commit statistics.
func (m *Manager) Stats() []KindSnapshot { return m.stats.snapshot() }

// Begin opens a transaction scoped to the given zones and materials,
// snapshotting their current versions without taking any lock.
func (m *Manager) Begin(cfg domain.TxnConfig, zones []domain.ZoneID, materials []domain.TypeID) *Transaction {
	tx := &Transaction{trace: uuid.New(), cfg: cfg, mgr: m, attempts: 1}
	tx.snapshot(zones, materials)
	return tx
}

// Commit validates the transaction and applies its buffered writes under
// the appropriate locks. On conflict it returns the conflicting resources
// and applies nothing; the caller (normally Run) decides whether to retry.
func (m *Manager) Commit(tx *Transaction) (conflicts []domain.ResourceRef, err error) {
	if conflicts = tx.Validate(); len(conflicts) > 0 {
		m.stats.recordAttempt(tx.cfg.Kind, true)
		m.metrics.ObserveCommit(tx.cfg.Kind, false, true)
		return conflicts, nil
	}

	fast := m.useFastPath(tx)
	owner := uint64(m.owners.Increment())
	wz, wm := tx.stagedRefs()

	// The slow path covers the read set and any zone written without a
	// prior read; LockMultipleZones sorts and dedups the union.
	var lockedZones []domain.ZoneID
	if fast {
		lockedZones = wz
	} else {
		lockedZones = append(append([]domain.ZoneID(nil), tx.readZones()...), wz...)
	}
	m.zoneLocks.LockMultipleZones(owner, lockedZones)
	defer m.zoneLocks.UnlockMultipleZones(owner, lockedZones)
	matIDs := make([]domain.ZoneID, len(wm))
	for i, id := range wm {
		matIDs[i] = domain.ZoneID(id)
	}
	m.matLocks.LockMultipleZones(owner, matIDs)
	defer m.matLocks.UnlockMultipleZones(owner, matIDs)

	// Second validation under locks: a writer may have slipped in between
	// the optimistic check and acquisition.
	if conflicts = tx.Validate(); len(conflicts) > 0 {
		m.stats.recordAttempt(tx.cfg.Kind, true)
		m.metrics.ObserveCommit(tx.cfg.Kind, fast, true)
		return conflicts, nil
	}

	for _, w := range tx.writes {
		if w.apply != nil {
			w.apply()
		}
	}
	for ref := range tx.staged {
		m.versions.Bump(ref)
	}
	m.stats.recordAttempt(tx.cfg.Kind, false)
	m.stats.recordCommit(tx.cfg.Kind)
	m.metrics.ObserveCommit(tx.cfg.Kind, fast, false)
	return nil, nil
}

// useFastPath reports whether this attempt may commit under write-set
// locks only, trading a slightly higher re-validation conflict chance for
// lower typical latency.
func (m *Manager) useFastPath(tx *Transaction) bool {
	if !tx.cfg.AllowFastPath || tx.attempts > 1 {
		return false
	}
	rate, trusted := m.stats.conflictRate(tx.cfg.Kind)
	return trusted && rate < m.threshold
}

// Run drives the full optimistic loop: begin, execute fn against buffered
// writes, validate and commit, retrying per the configured strategy. A
// transaction that exhausts its retry budget surfaces
// TransactionAbortedError with nothing applied.
func (m *Manager) Run(ctx context.Context, cfg domain.TxnConfig, zones []domain.ZoneID, materials []domain.TypeID, fn func(tx *Transaction) error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	tx := &Transaction{trace: uuid.New(), cfg: cfg, mgr: m}

	var lastConflicts []domain.ResourceRef
	for attempt := 1; ; attempt++ {
		tx.attempts = attempt
		tx.reset()
		tx.snapshot(zones, materials)

		if err := fn(tx); err != nil {
			return err
		}
		conflicts, err := m.Commit(tx)
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			return nil
		}
		lastConflicts = conflicts

		if cfg.Strategy == domain.RetryNone || attempt > cfg.MaxRetries {
			m.logger.Warn("transaction aborted",
				"trace", tx.trace, "kind", cfg.Kind,
				"attempts", attempt, "conflicts", len(conflicts))
			return domain.TransactionAbortedError{Kind: cfg.Kind, Attempts: attempt, Conflicts: lastConflicts}
		}
		delay := m.backoff(cfg, attempt)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// backoff computes the wait before retry attempt+1 for the strategy.
func (m *Manager) backoff(cfg domain.TxnConfig, attempt int) time.Duration {
	base := cfg.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	switch cfg.Strategy {
	case domain.RetryFixedInterval:
		return base
	case domain.RetryExponentialBackoff:
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	case domain.RetryCustom:
		if cfg.BackoffFn != nil {
			return cfg.BackoffFn(attempt)
		}
		return base
	default:
		return 0
	}
}
