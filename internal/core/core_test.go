package core

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/AgenticGames/miningspice/internal/compress"
	"github.com/AgenticGames/miningspice/internal/config"
	"github.com/AgenticGames/miningspice/pkg/domain"
	"github.com/AgenticGames/miningspice/plugins/stone"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Snapshot.Driver = "memory"
	cfg.Catalog.Driver = "memory"
	cfg.Scheduler.Workers = 2
	return cfg
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	c, err := New(context.Background(), testConfig(), Options{LogWriter: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return c
}

func TestCoreLifecycleWithStonePlugin(t *testing.T) {
	c := newTestCore(t)
	if err := c.InstallPlugin(stone.New()); err != nil {
		t.Fatalf("InstallPlugin: %v", err)
	}
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := c.Initialize(ctx); err == nil {
		t.Fatalf("second Initialize should fail")
	}
	if got := c.Materials().TypeCount(); got != 6 {
		t.Fatalf("TypeCount = %d, want 6", got)
	}
	if errs := c.Validate(ctx); len(errs) != 0 {
		t.Fatalf("Validate reported %v", errs)
	}

	stoneID, ok := c.Materials().GetTypeID("stone")
	if !ok {
		t.Fatalf("stone not registered")
	}
	granite, ok := c.Materials().GetTypeInfoByName("granite")
	if !ok {
		t.Fatalf("granite not registered")
	}
	if granite.ParentID != stoneID {
		t.Fatalf("granite.ParentID = %d, want %d", granite.ParentID, stoneID)
	}
	// Declared density wins over the inherited one; resistance was not
	// declared, so it comes from stone.
	if p := granite.Properties["density"]; p.Float != 2.75 {
		t.Fatalf("granite density = %v, want 2.75", p.Float)
	}
	if granite.Resistance != 2.5 {
		t.Fatalf("granite resistance = %v, want 2.5", granite.Resistance)
	}
	want := domain.CapabilityMineable | domain.CapabilityDestructible | domain.CapabilityResource
	if !granite.Capabilities.Has(want) {
		t.Fatalf("granite capabilities = %b, want union with parent %b", granite.Capabilities, want)
	}

	marble, ok := c.Materials().GetTypeInfoByName("marble")
	if !ok {
		t.Fatalf("marble not registered")
	}
	if p := marble.Properties["density"]; p.Float != 2.6 {
		t.Fatalf("marble density = %v, want inherited 2.6", p.Float)
	}

	obsidianID, _ := c.Materials().GetTypeID("obsidian")
	if !c.Materials().IsDerivedFrom(obsidianID, stoneID) {
		t.Fatalf("obsidian should derive from stone through basalt")
	}
	profile := c.CompressionPolicy().ProfileFor(obsidianID, compress.TierCold)
	if profile.Codec != "zstd" || profile.Level != 4 {
		t.Fatalf("obsidian cold profile = %+v, want zstd level 4", profile)
	}

	if _, ok := c.ZoneKinds().GetKindByName("bedrock"); !ok {
		t.Fatalf("bedrock zone kind not registered")
	}
}

func TestCoreRelationshipLookup(t *testing.T) {
	c := newTestCore(t)
	if err := c.InstallPlugin(stone.New()); err != nil {
		t.Fatalf("InstallPlugin: %v", err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	graniteID, _ := c.Materials().GetTypeID("granite")
	basaltID, _ := c.Materials().GetTypeID("basalt")
	rel, ok := c.Materials().GetRelationship(basaltID, graniteID)
	if !ok {
		t.Fatalf("bidirectional relationship not visible from reverse endpoint")
	}
	if rel.Score != 0.8 || !rel.CanBlend {
		t.Fatalf("relationship = %+v, want score 0.8 blendable", rel)
	}
}

func TestCoreHibernateRoundTrip(t *testing.T) {
	c := newTestCore(t)
	if err := c.InstallPlugin(stone.New()); err != nil {
		t.Fatalf("InstallPlugin: %v", err)
	}
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	zone := c.ZoneKinds().ZoneFor("bedrock", 10, 0, 10)
	obsidianID, _ := c.Materials().GetTypeID("obsidian")
	payload := bytes.Repeat([]byte("obsidian-field-"), 256)

	entry, err := c.Hibernator().Hibernate(ctx, "bedrock", zone, obsidianID, 1, payload)
	if err != nil {
		t.Fatalf("Hibernate: %v", err)
	}
	if entry.RawSize != int64(len(payload)) {
		t.Fatalf("RawSize = %d, want %d", entry.RawSize, len(payload))
	}
	if hib, err := c.Hibernator().IsHibernated(ctx, "bedrock", zone); err != nil || !hib {
		t.Fatalf("IsHibernated = %v, %v; want true", hib, err)
	}

	restored, ok, err := c.Hibernator().Awaken(ctx, "bedrock", zone)
	if err != nil {
		t.Fatalf("Awaken: %v", err)
	}
	if !ok || !bytes.Equal(restored, payload) {
		t.Fatalf("awakened data mismatch")
	}
	if hib, err := c.Hibernator().IsHibernated(ctx, "bedrock", zone); err != nil || hib {
		t.Fatalf("awakened zone still catalogued: %v, %v", hib, err)
	}
}

func TestCorePluginAfterInitialize(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := c.InstallPlugin(stone.New()); err != nil {
		t.Fatalf("late InstallPlugin: %v", err)
	}
	if got := c.Materials().TypeCount(); got != 6 {
		t.Fatalf("late install registered %d types, want 6", got)
	}
}

func TestCoreRejectsUnknownCatalogDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Catalog.Driver = "tape"
	if _, err := New(context.Background(), cfg, Options{LogWriter: io.Discard}); err == nil {
		t.Fatalf("New should reject unknown catalog driver")
	}
}
