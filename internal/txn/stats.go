package txn

import "sync"

// kindStats tracks commit outcomes for one transaction kind. The conflict
// rate feeds fast-path selection: kinds that rarely conflict may commit
// under per-resource locks instead of full zone locking.
type kindStats struct {
	attempts  uint64
	conflicts uint64
	commits   uint64
}

func (s *kindStats) rate() float64 {
	if s.attempts == 0 {
		return 0
	}
	return float64(s.conflicts) / float64(s.attempts)
}

// statsTable guards per-kind counters behind one small mutex; commit-path
// updates are two increments and never contend for long.
type statsTable struct {
	mu    sync.Mutex
	kinds map[string]*kindStats
}

func newStatsTable() *statsTable {
	return &statsTable{kinds: make(map[string]*kindStats)}
}

func (t *statsTable) get(kind string) *kindStats {
	if kind == "" {
		kind = "default"
	}
	s, ok := t.kinds[kind]
	if !ok {
		s = &kindStats{}
		t.kinds[kind] = s
	}
	return s
}

func (t *statsTable) recordAttempt(kind string, conflicted bool) {
	t.mu.Lock()
	s := t.get(kind)
	s.attempts++
	if conflicted {
		s.conflicts++
	}
	t.mu.Unlock()
}

func (t *statsTable) recordCommit(kind string) {
	t.mu.Lock()
	t.get(kind).commits++
	t.mu.Unlock()
}

// conflictRate returns the kind's historical conflict rate, and whether
// enough attempts exist for the figure to mean anything.
func (t *statsTable) conflictRate(kind string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(kind)
	return s.rate(), s.attempts >= fastPathMinSamples
}

// KindSnapshot is a read-only view of one kind's counters.
type KindSnapshot struct {
	Kind      string
	Attempts  uint64
	Conflicts uint64
	Commits   uint64
}

func (t *statsTable) snapshot() []KindSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]KindSnapshot, 0, len(t.kinds))
	for kind, s := range t.kinds {
		out = append(out, KindSnapshot{Kind: kind, Attempts: s.attempts, Conflicts: s.conflicts, Commits: s.commits})
	}
	return out
}
