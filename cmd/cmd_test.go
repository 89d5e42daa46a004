package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/prmake/internal/discovery"
	"github.com/conneroisu/prmake/internal/provenance"
	"github.com/conneroisu/prmake/internal/runner"
	"github.com/conneroisu/prmake/internal/services"
	"github.com/conneroisu/prmake/internal/testutils"
)

// resetFlags restores every flag of cmd to its default between runs.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	for _, c := range rootCmd.Commands() {
		resetFlags(c)
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		viper.Reset()
	})

	code = execute(rootCmd, args)
	return out.String(), errOut.String(), code
}

// fakeMake writes a stand-in for make that echoes its arguments and exits
// with code.
func fakeMake(t *testing.T, code int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fakemake")
	script := fmt.Sprintf("#!/bin/sh\necho \"make $*\"\nexit %d\n", code)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func enterProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := testutils.CreateTempProject(t, files)
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
	return dir
}

func TestRunBuildsThenRunsMake(t *testing.T) {
	dir := enterProject(t, map[string]string{"Makefile.pr": testutils.StandardPrfiles["shell"]})
	mk := fakeMake(t, 0)

	stdout, stderr, code := runCLI(t, "--make="+mk, "all", "-j2")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "Building: Makefile\n")
	assert.Contains(t, stdout, "Running: "+mk+" -f Makefile all -j2\n")
	assert.Contains(t, stdout, "make -f Makefile all -j2\n")

	ins, err := provenance.Inspect(filepath.Join(dir, "Makefile"))
	require.NoError(t, err)
	assert.Equal(t, provenance.Valid, ins.Ownership)
	assert.Contains(t, testutils.Body(t, filepath.Join(dir, "Makefile")), "one:\n\techo one\n")

	testutils.Age(t, time.Hour, filepath.Join(dir, "Makefile.pr"))
	stdout, _, code = runCLI(t, "--make="+mk)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Makefile is up to date\n")
	assert.NotContains(t, stdout, "Building:")
}

func TestRunPropagatesMakeStatus(t *testing.T) {
	enterProject(t, map[string]string{"Makefile.pr": "all:\n"})
	mk := fakeMake(t, 3)

	_, _, code := runCLI(t, "--make="+mk)
	assert.Equal(t, 3, code)
}

func TestRunWithoutPrfileInvokesPlainMake(t *testing.T) {
	enterProject(t, map[string]string{"Makefile": "all:\n"})
	mk := fakeMake(t, 0)

	stdout, _, code := runCLI(t, "--make="+mk, "clean")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "invoking ordinary make instead")
	assert.Contains(t, stdout, "Running: "+mk+" clean\n")
}

func TestRunRefusesForeignMakefile(t *testing.T) {
	dir := enterProject(t, map[string]string{
		"Makefile.pr": "all:\n",
		"Makefile":    "all:\n\techo handwritten\n",
	})
	testutils.Touch(t, time.Hour, filepath.Join(dir, "Makefile.pr"))
	mk := fakeMake(t, 0)

	stdout, stderr, code := runCLI(t, "--make="+mk)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not output from prmake")
	assert.NotContains(t, stdout, "Running:")

	data, err := os.ReadFile(filepath.Join(dir, "Makefile"))
	require.NoError(t, err)
	assert.Equal(t, "all:\n\techo handwritten\n", string(data))
}

func TestRunSyntaxErrorPublishesNothing(t *testing.T) {
	dir := enterProject(t, map[string]string{"Makefile.pr": testutils.StandardPrfiles["unclosed"]})
	mk := fakeMake(t, 0)

	stdout, stderr, code := runCLI(t, "--make="+mk)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "MISSING_CLOSE")
	assert.NotContains(t, stdout, "Running:")
	assert.NoFileExists(t, filepath.Join(dir, "Makefile"))
}

func TestRunBlockFailure(t *testing.T) {
	dir := enterProject(t, map[string]string{"Makefile.pr": testutils.StandardPrfiles["failing"]})
	mk := fakeMake(t, 0)

	_, stderr, code := runCLI(t, "--make="+mk)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "COMMAND_FAILED")
	assert.NoFileExists(t, filepath.Join(dir, "Makefile"))
}

func TestRunNamedFiles(t *testing.T) {
	dir := enterProject(t, map[string]string{
		"gen.mk.pr":   "gen:\n",
		"rules.mk.pr": "rules:\n",
	})
	mk := fakeMake(t, 0)

	stdout, stderr, code := runCLI(t, "--make="+mk, "-f", "gen.mk", "--makefile=rules.mk", "gen")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Running: "+mk+" -f gen.mk -f rules.mk gen\n")
	assert.FileExists(t, filepath.Join(dir, "gen.mk"))
	assert.FileExists(t, filepath.Join(dir, "rules.mk"))
}

func TestRunMissingNamedSource(t *testing.T) {
	enterProject(t, nil)
	mk := fakeMake(t, 0)

	_, stderr, code := runCLI(t, "--make="+mk, "--prfile=absent.mk.pr")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "MISSING_FILE")
}

func TestRunSubcommandNamesReachMake(t *testing.T) {
	enterProject(t, map[string]string{"Makefile.pr": "status:\n"})
	mk := fakeMake(t, 0)

	for _, args := range [][]string{
		{"--make=" + mk, "--", "status"},
		{"--make=" + mk, "help"},
	} {
		stdout, stderr, code := runCLI(t, args...)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Running: "+mk+" -f Makefile "+args[len(args)-1]+"\n")
	}
}

func TestRunUsageError(t *testing.T) {
	enterProject(t, nil)

	_, stderr, code := runCLI(t, "--prbogus=1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "UNKNOWN_OPTION")
	assert.Contains(t, stderr, "--prforce")
}

func TestRunHelp(t *testing.T) {
	enterProject(t, nil)

	stdout, _, code := runCLI(t, "-h")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "#begincode")
	assert.Contains(t, stdout, "--prext")
}

func TestExecuteWithNilArgsIgnoresProcessArguments(t *testing.T) {
	enterProject(t, nil)
	mk := fakeMake(t, 0)
	t.Setenv("PRMAKE_MAKE", mk)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		viper.Reset()
	})

	require.Equal(t, 0, execute(rootCmd, nil))
	assert.Contains(t, out.String(), "Running: "+mk+"\n")
	assert.NotContains(t, out.String(), "-test.")
}

func TestRunConfiguration(t *testing.T) {
	t.Run("config file in working directory", func(t *testing.T) {
		mk := fakeMake(t, 0)
		enterProject(t, map[string]string{
			"Makefile.in": "all:\n",
			".prmake.yml": fmt.Sprintf("ext: .in\nmake: %s\n", mk),
		})

		stdout, stderr, code := runCLI(t)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Running: "+mk+" -f Makefile\n")
	})

	t.Run("command line overrides config", func(t *testing.T) {
		mk := fakeMake(t, 0)
		enterProject(t, map[string]string{
			"Makefile.pr": "all:\n",
			".prmake.yml": "ext: .in\nmake: no-such-make\n",
		})

		stdout, stderr, code := runCLI(t, "--prext=.pr", "--make="+mk)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Building: Makefile\n")
	})

	t.Run("environment", func(t *testing.T) {
		mk := fakeMake(t, 0)
		enterProject(t, map[string]string{"Makefile.pr": "all:\n"})
		t.Setenv("PRMAKE_MAKE", mk)

		stdout, stderr, code := runCLI(t)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Running: "+mk+" -f Makefile\n")
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		enterProject(t, map[string]string{"Makefile.pr": "all:\n"})

		_, stderr, code := runCLI(t, "--prconfig=absent.yml")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "configuration")
	})
}

func TestStatusCommand(t *testing.T) {
	dir := enterProject(t, map[string]string{
		"Makefile.pr": testutils.StandardPrfiles["include"],
		"rules.inc":   "a:\n",
	})

	t.Run("json", func(t *testing.T) {
		stdout, stderr, code := runCLI(t, "status", "--format", "json")
		require.Equal(t, 0, code, stderr)

		var statuses []services.PairStatus
		require.NoError(t, json.Unmarshal([]byte(stdout), &statuses))
		require.Len(t, statuses, 1)
		assert.Equal(t, "Makefile.pr", statuses[0].Source)
		assert.True(t, statuses[0].Stale)
		assert.Equal(t, "missing", statuses[0].Ownership)
		assert.Equal(t, []string{"Makefile.pr", "rules.inc"}, statuses[0].Dependencies)
	})

	t.Run("yaml", func(t *testing.T) {
		stdout, stderr, code := runCLI(t, "status", "--format=yaml")
		require.Equal(t, 0, code, stderr)

		var statuses []services.PairStatus
		require.NoError(t, yaml.Unmarshal([]byte(stdout), &statuses))
		require.Len(t, statuses, 1)
		assert.Equal(t, "Makefile", statuses[0].Output)
	})

	t.Run("text", func(t *testing.T) {
		stdout, _, code := runCLI(t, "status")
		require.Equal(t, 0, code)
		assert.Contains(t, stdout, "Makefile.pr -> Makefile: stale (missing)")
		assert.Contains(t, stdout, "depends on: Makefile.pr, rules.inc")
	})

	t.Run("does not write", func(t *testing.T) {
		_, _, code := runCLI(t, "status")
		require.Equal(t, 0, code)
		assert.NoFileExists(t, filepath.Join(dir, "Makefile"))
	})

	t.Run("bad format", func(t *testing.T) {
		_, stderr, code := runCLI(t, "status", "--format=xml")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "unsupported format")
	})
}

func TestStatusWithoutPrfile(t *testing.T) {
	enterProject(t, nil)

	stdout, _, code := runCLI(t, "status")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "no GNUmakefile.pr")

	stdout, _, code = runCLI(t, "status", "--format=json")
	require.Equal(t, 0, code)
	assert.JSONEq(t, "[]", stdout)
}

func TestVersionCommand(t *testing.T) {
	stdout, _, code := runCLI(t, "version", "--short")
	require.Equal(t, 0, code)
	assert.NotEmpty(t, strings.TrimSpace(stdout))

	stdout, _, code = runCLI(t, "version")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(stdout, "prmake "))
	assert.Contains(t, stdout, "Go: ")

	stdout, _, code = runCLI(t, "version", "--format", "json")
	require.Equal(t, 0, code)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "platform")

	_, _, code = runCLI(t, "version", "--format", "xml")
	assert.Equal(t, 1, code)
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchSessionRebuildsOnIncludeChange(t *testing.T) {
	dir := testutils.CreateTempProject(t, map[string]string{
		"Makefile.pr": testutils.StandardPrfiles["include"],
		"rules.inc":   "first:\n",
	})
	cfg := testutils.CreateTestConfig(dir)
	cfg.Watch.Debounce = 20 * time.Millisecond

	pair := discovery.Pair{Source: filepath.Join(dir, "Makefile.pr"), Output: filepath.Join(dir, "Makefile")}
	out := &syncBuffer{}
	session := &watchSession{
		out:   out,
		svc:   services.NewBuildService(&runner.FakeRunner{}, nil, dir),
		pairs: []discovery.Pair{pair},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- session.run(ctx, cfg) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Watching 2 file(s)")
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, testutils.Body(t, pair.Output), "first:\n")

	testutils.Age(t, time.Hour, pair.Output)
	aged, err := os.Stat(pair.Output)
	require.NoError(t, err)
	testutils.WriteFile(t, dir, "rules.inc", "second:\n")

	testutils.WaitForFileChange(t, pair.Output, aged.ModTime(), 3*time.Second)
	assert.Contains(t, testutils.Body(t, pair.Output), "second:\n")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch session did not stop")
	}
	assert.Contains(t, out.String(), "Building: "+pair.Output)
}
