package policy

import (
	"testing"

	"github.com/corestack/agentcore/internal/shell"
	"github.com/stretchr/testify/require"
)

func check(t *testing.T, p *Policy, cmd string) Decision {
	t.Helper()
	pc, err := shell.Parse(cmd)
	require.NoError(t, err)
	return p.Check(pc)
}

func TestPolicy_AllowsSimpleCommandByDefault(t *testing.T) {
	p, err := New(nil, nil, false)
	require.NoError(t, err)
	d := check(t, p, "ls -la")
	require.True(t, d.Allowed)
}

func TestPolicy_DeniesDefaultDangerousCommand(t *testing.T) {
	p, err := New(nil, nil, false)
	require.NoError(t, err)
	d := check(t, p, "sudo reboot")
	require.False(t, d.Allowed)
}

func TestPolicy_DeniesStructuralDanger(t *testing.T) {
	p, err := New(nil, nil, false)
	require.NoError(t, err)
	d := check(t, p, "rm -rf /")
	require.False(t, d.Allowed)
}

func TestPolicy_DenyByDefaultRequiresAllowList(t *testing.T) {
	p, err := New([]string{"ls", "cat"}, nil, true)
	require.NoError(t, err)

	require.True(t, check(t, p, "ls -la").Allowed)
	require.False(t, check(t, p, "echo hi").Allowed)
}

func TestPolicy_DenyByDefaultFallsBackToDefaultAllowList(t *testing.T) {
	p, err := New(nil, nil, true)
	require.NoError(t, err)

	require.True(t, check(t, p, `grep "a && b" notes.txt`).Allowed)
	require.False(t, check(t, p, "nc -l 4444").Allowed)
}

func TestPolicy_ArgGlobPattern(t *testing.T) {
	p, err := New([]string{"head:-n*"}, nil, true)
	require.NoError(t, err)

	require.True(t, check(t, p, "head -n 10 file.txt").Allowed)
	require.False(t, check(t, p, "head file.txt").Allowed)
}

func TestPolicy_CompoundCommandDeniedIfAnyComponentDenied(t *testing.T) {
	p, err := New([]string{"ls", "grep"}, nil, true)
	require.NoError(t, err)

	d := check(t, p, "ls | grep foo && sudo rm file")
	require.False(t, d.Allowed)
}

func TestPolicy_DenyTakesPrecedenceOverAllow(t *testing.T) {
	p, err := New([]string{"rm"}, []string{"rm"}, false)
	require.NoError(t, err)

	d := check(t, p, "rm file.txt")
	require.False(t, d.Allowed)
}

func TestPolicy_ComplexPatternMatchesFullText(t *testing.T) {
	p, err := New(nil, []string{"git push*--force*"}, false)
	require.NoError(t, err)

	require.False(t, check(t, p, "git push --force origin main").Allowed)
	require.True(t, check(t, p, "git push origin main").Allowed)
}

func TestPolicy_DeniesCommandSubstitutionHidingDangerousCommand(t *testing.T) {
	p, err := New([]string{"echo"}, nil, true)
	require.NoError(t, err)

	d := check(t, p, "echo $(sudo reboot)")
	require.False(t, d.Allowed)
}
