package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInternalImportForbidden(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"github.com/AgenticGames/miningspice/internal/sched", true},
		{"github.com/AgenticGames/miningspice/pkg/domain", false},
		{"fmt", false},
		{"github.com/AgenticGames/miningspice/internal/snapshot/sub", true},
	}
	for _, tc := range cases {
		if got := InternalImportForbidden(tc.path); got != tc.want {
			t.Errorf("InternalImportForbidden(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestBackendSDKImportForbidden(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"github.com/dgraph-io/badger/v4", true},
		{"github.com/dgraph-io/badgerx", false},
		{"modernc.org/sqlite", false},
	}
	for _, tc := range cases {
		if got := BackendSDKImportForbidden(tc.path); got != tc.want {
			t.Errorf("BackendSDKImportForbidden(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	src := `package scratch

import (
	"fmt"
	"github.com/AgenticGames/miningspice/internal/sched"
)

var _ = fmt.Sprint(sched.Config{})
`
	if err := os.WriteFile(filepath.Join(dir, "scratch.go"), []byte(src), 0o600); err != nil {
		t.Fatalf("write scratch: %v", err)
	}
	// Test files are ignored by the scan.
	if err := os.WriteFile(filepath.Join(dir, "scratch_test.go"), []byte("package scratch\n"), 0o600); err != nil {
		t.Fatalf("write scratch test: %v", err)
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 {
		t.Fatalf("violations = %v, want exactly one", viols)
	}
}

func TestTransitiveDependencyViolationsParsesOutput(t *testing.T) {
	orig := goListDeps
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\ngithub.com/AgenticGames/miningspice/internal/txn\n\n"), nil
	}
	defer func() { goListDeps = orig }()

	viols, _, err := transitiveDependencyViolations("./...", InternalImportForbidden)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "github.com/AgenticGames/miningspice/internal/txn" {
		t.Fatalf("viols = %v", viols)
	}
}
