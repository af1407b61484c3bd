package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestPluginsDoNotImportInternal enforces that plugin packages depend
// only on the stable facades in pkg/pluginapi and pkg/domain, never on
// engine internals.
func TestPluginsDoNotImportInternal(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("cannot get working dir: %v", err)
	}
	root := wd // this file lives in the plugins directory

	const forbidden = "github.com/AgenticGames/miningspice/internal/"

	var violations []string
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		if path == filepath.Join(root, "architecture_test.go") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(string(data), "\n") {
			if q := extractQuoted(strings.TrimSpace(line)); strings.HasPrefix(q, forbidden) {
				violations = append(violations, path+": "+q)
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk plugins dir: %v", walkErr)
	}
	for _, v := range violations {
		t.Errorf("plugin file imports engine internals: %s", v)
	}
}

func extractQuoted(line string) string {
	start := strings.Index(line, "\"")
	if start == -1 {
		return ""
	}
	end := strings.Index(line[start+1:], "\"")
	if end == -1 {
		return ""
	}
	return line[start+1 : start+1+end]
}
