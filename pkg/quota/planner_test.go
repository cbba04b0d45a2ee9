package quota

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminus-io/xfsquotactl/pkg/mount"
)

// fakeExecutor scripts report output per subcommand and records every
// invocation. Unscripted subcommands succeed with empty output.
type fakeExecutor struct {
	responses map[string]ExecResult
	calls     []string
}

func (f *fakeExecutor) Exec(_ context.Context, subcommand, _ string) (ExecResult, error) {
	f.calls = append(f.calls, subcommand)
	if r, ok := f.responses[subcommand]; ok {
		return r, nil
	}
	return ExecResult{}, nil
}

func reportOutput(rows ...string) ExecResult {
	out := []string{
		"Project quota on /opt (/dev/sdb1)",
		"                               Blocks",
		"Project ID       Used       Soft       Hard    Warn/Grace",
		"---------- --------------------------------------------------",
	}
	return ExecResult{Stdout: append(out, rows...)}
}

func projectPlanner(t *testing.T, fake *fakeExecutor) *Planner {
	t.Helper()
	return &Planner{
		exec: fake,
		resolveMount: func(path string) (*mount.Info, error) {
			return &mount.Info{
				Spec:       "/dev/sdb1",
				Mountpoint: path,
				FSType:     "xfs",
				Options:    []string{"rw", "relatime", "prjquota"},
			}, nil
		},
	}
}

// useProjectFiles points the project mapping files at temp copies for
// the duration of the test.
func useProjectFiles(t *testing.T, projid string) {
	t.Helper()
	dir := t.TempDir()
	projects := filepath.Join(dir, "projects")
	projids := filepath.Join(dir, "projid")
	require.NoError(t, os.WriteFile(projects, []byte(""), 0o644))
	require.NoError(t, os.WriteFile(projids, []byte(projid), 0o644))

	origProjects, origProjid := projectsFile, projidFile
	projectsFile, projidFile = projects, projids
	t.Cleanup(func() {
		projectsFile, projidFile = origProjects, origProjid
	})
}

func uptr(v uint64) *uint64 { return &v }

func TestReconcileDefaultProjectBlockHard(t *testing.T) {
	fake := &fakeExecutor{responses: map[string]ExecResult{
		"report -p -b": reportOutput("#0                  0          0          0     00 [--------]"),
	}}
	p := projectPlanner(t, fake)

	result, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Mountpoint: "/opt",
		Limits:     DesiredLimits{BlockHard: uptr(1 << 30), State: StatePresent},
	})
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, []string{"limit -p -d bhard=1073741824"}, result.Applied)
	assert.Equal(t, []string{"report -p -b", "limit -p -d bhard=1073741824"}, fake.calls)
}

func TestReconcileConvergedIsNoop(t *testing.T) {
	// 1g desired equals a current report value of 1048576 1024-byte
	// units, so the rerun issues no command at all.
	fake := &fakeExecutor{responses: map[string]ExecResult{
		"report -p -b": reportOutput("#0                  0          0    1048576     00 [--------]"),
	}}
	p := projectPlanner(t, fake)

	result, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Mountpoint: "/opt",
		Limits:     DesiredLimits{BlockHard: uptr(1 << 30), State: StatePresent},
	})
	require.NoError(t, err)

	assert.False(t, result.Changed)
	assert.Empty(t, result.Applied)
	assert.Equal(t, []string{"report -p -b"}, fake.calls)
}

func TestReconcileAbsentClearsOnlyNonZeroFields(t *testing.T) {
	useProjectFiles(t, "acct1:42\n")
	fake := &fakeExecutor{responses: map[string]ExecResult{
		"project acct1": {Stdout: []string{"Project Id 'acct1' path /opt/acct1"}},
		"report -p -b":  reportOutput("acct1            1024        500       1000     00 [--------]"),
		"report -p -i":  reportOutput("acct1               3          0          0     00 [--------]"),
		"report -p -r":  reportOutput("acct1               0          0          0     00 [--------]"),
	}}
	p := projectPlanner(t, fake)

	result, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Name:       "acct1",
		Mountpoint: "/opt",
		Limits:     DesiredLimits{State: StateAbsent},
	})
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, []string{"limit -p bsoft=0 bhard=0 acct1"}, result.Applied)
}

func TestReconcileDryRunMutatesNothing(t *testing.T) {
	fake := &fakeExecutor{responses: map[string]ExecResult{
		"report -p -b": reportOutput("#0                  0          0          0     00 [--------]"),
	}}
	p := projectPlanner(t, fake)

	result, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Mountpoint: "/opt",
		Limits:     DesiredLimits{BlockHard: uptr(1 << 30), State: StatePresent},
		DryRun:     true,
	})
	require.NoError(t, err)

	// Same changed flag and predicted command as the mutating run, but
	// only the report was executed.
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"limit -p -d bhard=1073741824"}, result.Applied)
	assert.Equal(t, []string{"report -p -b"}, fake.calls)
}

func TestReconcileSetsProjectAssociation(t *testing.T) {
	useProjectFiles(t, "acct1:42\n")
	fake := &fakeExecutor{responses: map[string]ExecResult{
		"project acct1": {Stdout: []string{"Project Id 'acct1' - is not set."}},
		"report -p -b":  reportOutput("acct1               0          0    1048576     00 [--------]"),
	}}
	p := projectPlanner(t, fake)

	result, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Name:       "acct1",
		Mountpoint: "/opt",
		Limits:     DesiredLimits{BlockHard: uptr(1 << 30), State: StatePresent},
	})
	require.NoError(t, err)

	// Limits already converged, yet the association transition alone
	// counts as a change.
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"project -s acct1"}, result.Applied)
	assert.Contains(t, fake.calls, "project -s acct1")
}

func TestReconcileDryRunPredictsAssociation(t *testing.T) {
	useProjectFiles(t, "acct1:42\n")
	fake := &fakeExecutor{responses: map[string]ExecResult{
		"project acct1": {Stdout: []string{"Project Id 'acct1' - is not set."}},
		"report -p -b":  reportOutput("acct1               0          0    1048576     00 [--------]"),
	}}
	p := projectPlanner(t, fake)

	result, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Name:       "acct1",
		Mountpoint: "/opt",
		Limits:     DesiredLimits{BlockHard: uptr(1 << 30), State: StatePresent},
		DryRun:     true,
	})
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.NotContains(t, fake.calls, "project -s acct1")
}

func TestReconcileDefaultUserBundledForm(t *testing.T) {
	fake := &fakeExecutor{responses: map[string]ExecResult{
		"report -u -b": reportOutput("root                0          0          0     00 [--------]"),
		"report -u -i": reportOutput("root                0          0          0     00 [--------]"),
	}}
	p := &Planner{
		exec: fake,
		resolveMount: func(path string) (*mount.Info, error) {
			return &mount.Info{Mountpoint: path, FSType: "xfs", Options: []string{"rw", "usrquota"}}, nil
		},
	}

	result, err := p.Reconcile(context.Background(), Request{
		Type:       User,
		Mountpoint: "/srv",
		Limits: DesiredLimits{
			BlockSoft: uptr(512 << 20),
			BlockHard: uptr(1 << 30),
			InodeHard: uptr(10000),
			State:     StatePresent,
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, []string{"limit -u -d bsoft=536870912 bhard=1073741824 ihard=10000"}, result.Applied)
}

func TestReconcileAbsentCurrentDiffersFromZero(t *testing.T) {
	// No report row for the identity means no current limit, which is
	// not the same as a current limit of zero: a desired zero still
	// needs a corrective command.
	useProjectFiles(t, "acct1:42\n")
	fake := &fakeExecutor{responses: map[string]ExecResult{
		"project acct1": {Stdout: []string{"Project Id 'acct1' path /opt/acct1"}},
		"report -p -b":  reportOutput(),
	}}
	p := projectPlanner(t, fake)

	result, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Name:       "acct1",
		Mountpoint: "/opt",
		Limits:     DesiredLimits{BlockHard: uptr(0), State: StatePresent},
	})
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, []string{"limit -p bhard=0 acct1"}, result.Applied)
}

func TestReconcileWrongFilesystemType(t *testing.T) {
	fake := &fakeExecutor{}
	p := &Planner{
		exec: fake,
		resolveMount: func(path string) (*mount.Info, error) {
			return &mount.Info{Mountpoint: path, FSType: "ext4", Options: []string{"rw"}}, nil
		},
	}

	_, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Mountpoint: "/",
		Limits:     DesiredLimits{State: StatePresent},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an xfs filesystem")
	assert.Empty(t, fake.calls)
}

func TestReconcileMountNotFound(t *testing.T) {
	fake := &fakeExecutor{}
	p := &Planner{
		exec: fake,
		resolveMount: func(path string) (*mount.Info, error) {
			return nil, fmt.Errorf("%w: %s", mount.ErrNotFound, path)
		},
	}

	_, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Mountpoint: "/nope",
		Limits:     DesiredLimits{State: StatePresent},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, mount.ErrNotFound)
}

func TestReconcileMissingMountOption(t *testing.T) {
	fake := &fakeExecutor{}
	p := &Planner{
		exec: fake,
		resolveMount: func(path string) (*mount.Info, error) {
			return &mount.Info{Mountpoint: path, FSType: "xfs", Options: []string{"rw", "relatime"}}, nil
		},
	}

	_, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Mountpoint: "/opt",
		Limits:     DesiredLimits{State: StatePresent},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pquota/prjquota/pqnoenforce")
	assert.Empty(t, fake.calls)
}

func TestReconcileCommandFailureIsFatal(t *testing.T) {
	fake := &fakeExecutor{responses: map[string]ExecResult{
		"report -p -b": reportOutput("#0                  0          0          0     00 [--------]"),
		"limit -p -d bhard=1073741824": {
			Code:   1,
			Stderr: []string{"xfs_quota: cannot set limits: Operation not permitted"},
		},
	}}
	p := projectPlanner(t, fake)

	result, err := p.Reconcile(context.Background(), Request{
		Type:       Project,
		Mountpoint: "/opt",
		Limits:     DesiredLimits{BlockHard: uptr(1 << 30), State: StatePresent},
	})
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "limit -p -d bhard=1073741824", cmdErr.Subcommand)
	assert.Contains(t, err.Error(), "Operation not permitted")
	assert.False(t, result.Changed)
}
