// Package integration exercises the assembled engine end to end: plugin
// installation, concurrent transactional edits over zones, scheduled
// work, and a hibernate/awaken cycle against the in-memory backends.
package integration

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgenticGames/miningspice/internal/config"
	"github.com/AgenticGames/miningspice/internal/core"
	"github.com/AgenticGames/miningspice/internal/txn"
	"github.com/AgenticGames/miningspice/pkg/domain"
	"github.com/AgenticGames/miningspice/plugins/stone"
)

func startCore(t *testing.T) *core.Core {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Snapshot.Driver = "memory"
	cfg.Catalog.Driver = "memory"
	cfg.Scheduler.Workers = 4
	c, err := core.New(context.Background(), cfg, core.Options{LogWriter: io.Discard})
	require.NoError(t, err)
	require.NoError(t, c.InstallPlugin(stone.New()))
	require.NoError(t, c.Initialize(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, c.Shutdown(ctx))
	})
	return c
}

func TestConcurrentTransactionsOverSharedZones(t *testing.T) {
	c := startCore(t)
	ctx := context.Background()

	zones := []domain.ZoneID{
		c.ZoneKinds().ZoneFor("bedrock", 0, 0, 0),
		c.ZoneKinds().ZoneFor("bedrock", 10, 0, 0),
		c.ZoneKinds().ZoneFor("bedrock", 0, 0, 10),
	}
	cfg := c.ZoneKinds().TxnDefaults("bedrock")
	cfg.MaxRetries = 50

	const goroutines = 8
	const editsPer = 25
	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < editsPer; i++ {
				pair := []domain.ZoneID{zones[g%len(zones)], zones[(g+1)%len(zones)]}
				err := c.Transactions().Run(ctx, cfg, pair, nil, func(tx *txn.Transaction) error {
					for _, z := range pair {
						tx.StageWrite(domain.ZoneRef(z), func() {})
					}
					return nil
				})
				if err != nil {
					errs[g] = err
					return
				}
			}
		}(g)
	}
	wg.Wait()
	for g, err := range errs {
		require.NoErrorf(t, err, "goroutine %d", g)
	}

	// Every committed edit bumped each touched zone exactly once.
	var total uint64
	for _, z := range zones {
		total += c.Transactions().Versions().Version(domain.ZoneRef(z))
	}
	assert.Equal(t, uint64(goroutines*editsPer*2), total)
}

func TestHibernateCycleBumpsZoneVersion(t *testing.T) {
	c := startCore(t)
	ctx := context.Background()

	zone := c.ZoneKinds().ZoneFor("bedrock", -20, 0, -20)
	obsidian, ok := c.Materials().GetTypeID("obsidian")
	require.True(t, ok)
	before := c.Transactions().Versions().Version(domain.ZoneRef(zone))

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 7)
	}
	_, err := c.Hibernator().Hibernate(ctx, "bedrock", zone, obsidian, 1, payload)
	require.NoError(t, err)

	restored, found, err := c.Hibernator().Awaken(ctx, "bedrock", zone)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload, restored)

	after := c.Transactions().Versions().Version(domain.ZoneRef(zone))
	assert.Equal(t, before+2, after, "hibernate and awaken each bump the zone version")
}

func TestScheduledWorkSeesRegistryState(t *testing.T) {
	c := startCore(t)

	granite, ok := c.Materials().GetTypeID("granite")
	require.True(t, ok)

	var hardness float64
	id, err := c.Materials().ScheduleTypeTask(granite, func(ctx context.Context) error {
		rec, ok := c.Materials().GetTypeInfo(granite)
		if !ok {
			return domain.ErrUnknownType
		}
		hardness = rec.Hardness
		return nil
	}, domain.TaskConfig{Priority: domain.PriorityHigh})
	require.NoError(t, err)

	status, err := c.Scheduler().WaitForTask(id, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, domain.TaskCompleted, status)
	assert.Equal(t, 6.0, hardness)
}
