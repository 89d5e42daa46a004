// Package testutils provides fixtures shared by prmake package tests.
package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/prmake/internal/config"
)

// CreateTempProject creates a temporary project directory holding files,
// keyed by slash-separated relative path.
func CreateTempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		WriteFile(t, dir, name, content)
	}
	return dir
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Age moves the modification time of each path back by d.
func Age(t *testing.T, d time.Duration, paths ...string) {
	t.Helper()
	for _, path := range paths {
		info, err := os.Stat(path)
		require.NoError(t, err)
		when := info.ModTime().Add(-d)
		require.NoError(t, os.Chtimes(path, when, when))
	}
}

// Touch sets the modification time of each path to now plus d.
func Touch(t *testing.T, d time.Duration, paths ...string) {
	t.Helper()
	when := time.Now().Add(d)
	for _, path := range paths {
		require.NoError(t, os.Chtimes(path, when, when))
	}
}

// CreateTestConfig returns a configuration with defaults applied that works
// in projectDir.
func CreateTestConfig(projectDir string) *config.Config {
	return &config.Config{
		Ext:      config.DefaultExt,
		Make:     config.DefaultMake,
		Encoding: config.DefaultEncoding,
		LogLevel: "error",
		Watch:    config.WatchConfig{Debounce: config.DefaultDebounce},
		WorkDir:  projectDir,
	}
}

// Body returns the content of a generated makefile after its header line.
func Body(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, body, found := strings.Cut(string(data), "\n")
	require.True(t, found, "%s has no header line", path)
	return body
}

// StandardPrfiles are sample prfiles exercising the directive forms.
var StandardPrfiles = map[string]string{
	"plain": "all:\n\techo plain\n",
	"shell": `all: targets

#begincode sh
for t in one two; do
  printf '%s:\n\techo %s\n' "$t" "$t"
done
#endcode

targets: one two
`,
	"include": `#begincode cat
#includecode rules.inc
#endcode
`,
	"unclosed": "#begincode sh\necho never\n",
	"failing":  "#begincode sh\nexit 3\n#endcode\n",
}

// AssertFilePermissions checks the permission bits of path.
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	actualMode := info.Mode()
	require.Equal(t, expectedMode, actualMode&os.FileMode(0o777),
		"File %s has incorrect permissions: got %o, want %o",
		path, actualMode&os.FileMode(0o777), expectedMode)
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
