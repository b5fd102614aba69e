package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

func RepoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to locate testutil source file")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func BuildReportgateBinary(t *testing.T, root string) string {
	t.Helper()
	binDir := t.TempDir()
	binName := "reportgate"
	if runtime.GOOS == "windows" {
		binName = "reportgate.exe"
	}
	binPath := filepath.Join(binDir, binName)

	// #nosec G204 -- arguments are fixed and used only in test binaries.
	build := exec.Command("go", "build", "-o", binPath, "./cmd/reportgate")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build reportgate binary: %v\n%s", err, string(out))
	}
	return binPath
}

func CommandExitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected command exit error, got: %v", err)
	}
	return exitErr.ExitCode()
}

func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// AssertGoldenJSON compares value, indented, with a fixture under the repo
// root. UPDATE_GOLDEN=1 rewrites the fixture instead.
func AssertGoldenJSON(t *testing.T, repoRelativePath string, value any) {
	t.Helper()
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden json: %v", err)
	}
	encoded = append(encoded, '\n')

	goldenPath := filepath.Join(RepoRoot(t), filepath.FromSlash(repoRelativePath))
	if os.Getenv("UPDATE_GOLDEN") == "1" {
		WriteFile(t, goldenPath, encoded)
		return
	}

	// #nosec G304 -- path is resolved from repo root plus test-owned relative fixture.
	expected, err := os.ReadFile(goldenPath)
	if err != nil {
		t.Fatalf("read golden fixture %s: %v", goldenPath, err)
	}
	if bytes.Equal(normalizeNewlines(expected), encoded) {
		return
	}
	t.Fatalf(
		"golden mismatch for %s\nexpected:\n%s\nactual:\n%s\nset UPDATE_GOLDEN=1 to refresh fixtures",
		goldenPath,
		string(expected),
		string(encoded),
	)
}

func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	content, err := os.ReadFile(path) // #nosec G304 -- test helper for controlled paths.
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

// ReadJSONLines decodes every line of a JSONL file such as the audit log.
func ReadJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	records := []map[string]any{}
	for _, line := range bytes.Split(MustReadFile(t, path), []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		record := map[string]any{}
		if err := json.Unmarshal(line, &record); err != nil {
			t.Fatalf("decode line %q of %s: %v", string(line), path, err)
		}
		records = append(records, record)
	}
	return records
}

func FormatJSON(raw []byte) string {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw)
	}
	encoded, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return string(raw)
	}
	return fmt.Sprintf("%s\n", string(encoded))
}

func normalizeNewlines(raw []byte) []byte {
	return bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
}
