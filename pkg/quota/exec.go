package quota

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"k8s.io/klog/v2"
)

// ExecResult captures one xfs_quota invocation.
type ExecResult struct {
	Code   int
	Stdout []string
	Stderr []string
}

// Executor runs a single xfs_quota subcommand against a mountpoint.
// This is the sole mutation surface: every state change to the quota
// subsystem passes through this one path, so tests substitute a fake
// executor to script reports and capture issued commands.
type Executor interface {
	Exec(ctx context.Context, subcommand, mountpoint string) (ExecResult, error)
}

// XFSCLI shells out to the xfs_quota binary in expert mode.
type XFSCLI struct {
	Binary string
}

func NewXFSCLI() *XFSCLI { return &XFSCLI{Binary: "xfs_quota"} }

func (x *XFSCLI) Exec(ctx context.Context, subcommand, mountpoint string) (ExecResult, error) {
	klog.V(4).InfoS("Exec: xfs_quota", "subcommand", subcommand, "mountpoint", mountpoint)

	cmd := exec.CommandContext(ctx, x.Binary, "-x", "-c", subcommand, mountpoint)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{
		Stdout: splitLines(stdout.String()),
		Stderr: splitLines(stderr.String()),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Code = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("failed to run %s: %w", x.Binary, err)
	}
	return res, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// CommandError reports a non-zero exit from xfs_quota, carrying the
// exact invocation and raw output for diagnosis.
type CommandError struct {
	Subcommand string
	Mountpoint string
	Result     ExecResult
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("xfs_quota -x -c %q %s exited %d, stdout: %q, stderr: %q",
		e.Subcommand, e.Mountpoint, e.Result.Code,
		strings.Join(e.Result.Stdout, "\n"), strings.Join(e.Result.Stderr, "\n"))
}
