package execshell

import (
	"context"
	"testing"
	"time"

	"github.com/corestack/agentcore/internal/shell"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, cmd string) *shell.ParsedCommand {
	t.Helper()
	pc, err := shell.Parse(cmd)
	require.NoError(t, err)
	return pc
}

func TestExecute_SimpleCommandSucceeds(t *testing.T) {
	e := New()
	res, err := e.Execute(context.Background(), parse(t, "echo hello"), Options{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Stdout, "hello")
	require.Equal(t, 0, res.ExitCode)
}

func TestExecute_NonZeroExitIsNotAnError(t *testing.T) {
	e := New()
	res, err := e.Execute(context.Background(), parse(t, "false"), Options{})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.NotEqual(t, 0, res.ExitCode)
}

func TestExecute_TimeoutKillsProcess(t *testing.T) {
	e := New()
	res, err := e.Execute(context.Background(), parse(t, "sleep 5"), Options{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, res.Killed)
	require.False(t, res.Success)
}

func TestExecute_CompoundPipeRunsUnderShell(t *testing.T) {
	e := New()
	res, err := e.Execute(context.Background(), parse(t, "echo hi | cat"), Options{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Stdout, "hi")
}

func TestExecute_WorkingDirOutsideAllowedRootsIsRejected(t *testing.T) {
	e := New("/tmp/allowed-root")
	_, err := e.Execute(context.Background(), parse(t, "ls"), Options{WorkingDir: "/tmp/allowed-root-evil"})
	require.Error(t, err)
}

func TestExecute_WorkingDirInsideAllowedRootsIsAccepted(t *testing.T) {
	e := New("/tmp")
	res, err := e.Execute(context.Background(), parse(t, "pwd"), Options{WorkingDir: "/tmp"})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestResult_FormatIncludesStderrSection(t *testing.T) {
	r := &Result{Stdout: "out\n", Stderr: "oops\n", ExitCode: 1, Duration: 20 * time.Millisecond}
	plain := r.Format(false)
	require.Contains(t, plain, "out")
	require.Contains(t, plain, "--- STDERR ---")
	require.Contains(t, plain, "oops")
	require.NotContains(t, plain, "exit 1")

	withMeta := r.Format(true)
	require.Contains(t, withMeta, "exit 1")
}

func TestExecute_EnvironmentOverlaysParent(t *testing.T) {
	t.Setenv("EXECSHELL_PARENT_VAR", "from-parent")
	e := New()
	res, err := e.Execute(context.Background(),
		parse(t, `sh -c 'echo $EXECSHELL_PARENT_VAR $EXECSHELL_CHILD_VAR'`),
		Options{Environment: map[string]string{"EXECSHELL_CHILD_VAR": "from-overlay"}})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Stdout, "from-parent")
	require.Contains(t, res.Stdout, "from-overlay")
}

func TestExecute_OutputTruncatedBeyondMaxBytes(t *testing.T) {
	e := New()
	res, err := e.Execute(context.Background(), parse(t, "yes"), Options{MaxOutputByte: MinMaxOutput, Timeout: 5 * time.Second})
	require.NoError(t, err)
	require.True(t, res.Killed)
	require.LessOrEqual(t, len(res.Stdout), MinMaxOutput)
}
