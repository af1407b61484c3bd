package snapshot

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestOnlySnapshotPackageImportsBackendSDKs ensures the storage backend
// SDKs stay wrapped behind the Store interface. Other packages must
// depend on snapshot.Store instead of importing a driver SDK directly.
func TestOnlySnapshotPackageImportsBackendSDKs(t *testing.T) {
	backendPrefixes := []string{
		"github.com/aws/aws-sdk-go-v2/service/s3",
		"github.com/aws/aws-sdk-go-v2/config",
		"github.com/dgraph-io/badger/v4",
	}
	allowedPrefix := "github.com/AgenticGames/miningspice/internal/snapshot"

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "github.com/AgenticGames/miningspice/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if strings.HasPrefix(pkg.PkgPath, allowedPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			for _, prefix := range backendPrefixes {
				if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
					seen[pkg.PkgPath+": "+importPath] = struct{}{}
				}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden backend SDK import: %s", v)
		}
		t.Fatalf("found %d forbidden backend SDK imports", len(violations))
	}
}
