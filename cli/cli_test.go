package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args against a fresh stdout capture,
// mirroring the teacher's os.Pipe stdin/stdout redirection idiom for CLI
// tests (cli_execution_modes_test.go), and returns trimmed captured stdout.
func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	root := NewRootCommand()
	root.SetArgs(args)
	runErr := root.Execute()

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	require.NoError(t, runErr, "cli output so far:\n%s", buf.String())
	return strings.TrimSpace(buf.String())
}

func runCLIExpectErr(t *testing.T, args ...string) error {
	t.Helper()
	oldStdout := os.Stdout
	_, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = oldStdout; w.Close() }()

	root := NewRootCommand()
	root.SetArgs(args)
	return root.Execute()
}

func TestCLIEndToEndBuildAndRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")

	runCLI(t, "--db", dbPath, "new")
	runCLI(t, "--db", dbPath, "effect", "add", "io", "--doc", "io effect")
	runCLI(t, "--db", dbPath, "prim", "add", "add_i64", "--params", "i64,i64", "--results", "i64")

	arg0 := runCLI(t, "--db", dbPath, "node", "arg", "--index", "0", "--type", "i64")
	lit5 := runCLI(t, "--db", dbPath, "node", "lit", "--type", "i64", "--value", "5")
	primNode := runCLI(t, "--db", dbPath, "node", "prim", "--prim", "add_i64",
		"--inputs", fmt.Sprintf("%s:0,%s:0", arg0, lit5))

	runCLI(t, "--db", dbPath, "word", "add", "add_const",
		"--params", "i64", "--results", "i64",
		"--vals", primNode+":0")

	out := runCLI(t, "--db", dbPath, "run", "add_const", "--args", "i64:10")
	require.Equal(t, "15", out)
}

func TestCLIUnknownWordFailsWithExitCode(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	runCLI(t, "--db", dbPath, "new")

	err := runCLIExpectErr(t, "--db", dbPath, "run", "does-not-exist")
	require.Error(t, err)
	require.Equal(t, 2, exitCodeFor(err))
}

func TestCLIGuardRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	runCLI(t, "--db", dbPath, "new")

	lit1 := runCLI(t, "--db", dbPath, "node", "lit", "--type", "i64", "--value", "1")
	runCLI(t, "--db", dbPath, "word", "add", "always_true",
		"--results", "i64", "--vals", lit1+":0")
	runCLI(t, "--db", dbPath, "guard", "add", "is_truthy", "--word", "always_true")

	out := runCLI(t, "--db", dbPath, "guard", "list")
	require.Equal(t, "is_truthy", out)

	shown := runCLI(t, "--db", dbPath, "guard", "show", "is_truthy")
	require.Contains(t, shown, "results: [i64]")
}
