package internal

import (
	"bytes"
	"go/format"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// projectRoot returns the module root whether tests run from internal/ or
// from the root itself.
func projectRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if filepath.Base(wd) == "internal" {
		return filepath.Dir(wd)
	}
	return wd
}

// TestGofmtCompliance fails when a source file under internal/ or cmd/ is
// not gofmt-formatted. Fix with: gofmt -w ./internal/ ./cmd/
func TestGofmtCompliance(t *testing.T) {
	root := projectRoot(t)

	var unformatted []string
	for _, dir := range []string{"internal", "cmd"} {
		err := filepath.WalkDir(filepath.Join(root, dir), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") || d.Name() == "vendor" || d.Name() == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") {
				return nil
			}

			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			formatted, err := format.Source(content)
			if err != nil {
				// Unparsable files are the compiler's problem.
				return nil
			}
			if !bytes.Equal(content, formatted) {
				rel, _ := filepath.Rel(root, path)
				unformatted = append(unformatted, rel)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Failed to walk %s: %v", dir, err)
		}
	}

	for _, f := range unformatted {
		t.Errorf("not gofmt-formatted: %s", f)
	}
}

// TestGolangciLintCompliance runs golangci-lint over the module when it is
// installed.
func TestGolangciLintCompliance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping lint in short mode")
	}
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint not found in PATH, skipping test")
	}

	cmd := exec.Command("golangci-lint", "run", "--allow-parallel-runners", "./...")
	cmd.Dir = projectRoot(t)
	// A private build cache keeps sandboxed runners writable.
	cmd.Env = append(os.Environ(), "GOCACHE="+t.TempDir())
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Errorf("golangci-lint found issues:\n%s", output)
	}
}
