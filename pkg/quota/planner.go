package quota

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/terminus-io/xfsquotactl/pkg/mount"
)

// Request is the full set of caller-declared inputs for one reconcile
// pass.
type Request struct {
	Type       Type
	Name       string
	Mountpoint string
	Limits     DesiredLimits
	// DryRun predicts change without issuing any mutating command.
	DryRun bool
}

// Planner computes the minimal diff between desired and current quota
// state and issues only the corrective commands needed to converge.
type Planner struct {
	exec         Executor
	resolveMount func(string) (*mount.Info, error)
}

func NewPlanner(x Executor) *Planner {
	return &Planner{exec: x, resolveMount: mount.Resolve}
}

// Reconcile performs one best-effort corrective pass: at most one
// project association mutation plus at most one limit mutation. All
// preconditions are checked before anything is mutated; the first
// unrecoverable error terminates the run.
func (p *Planner) Reconcile(ctx context.Context, req Request) (Result, error) {
	var result Result

	mnt, err := p.resolveMount(req.Mountpoint)
	if err != nil {
		return result, err
	}
	if mnt.FSType != "xfs" {
		return result, fmt.Errorf("%s is not an xfs filesystem, found %s", req.Mountpoint, mnt.FSType)
	}

	id, err := ResolveIdentity(req.Type, req.Name, mnt)
	if err != nil {
		return result, err
	}

	// Non-default project identities must have their association set on
	// the mountpoint before limits can apply. An unset association is
	// itself a state transition and counts as a change.
	if id.Type == Project && !id.IsDefault() {
		set, err := ProjectAssigned(ctx, p.exec, req.Mountpoint, id.Name)
		if err != nil {
			return result, err
		}
		if !set {
			if err := p.apply(ctx, "project -s "+id.Name, req, &result); err != nil {
				return result, err
			}
		}
	}

	limits := req.Limits
	if limits.State == StateAbsent {
		zero := uint64(0)
		limits.BlockSoft, limits.BlockHard = &zero, &zero
		limits.InodeSoft, limits.InodeHard = &zero, &zero
		limits.RTBlockSoft, limits.RTBlockHard = &zero, &zero
	}

	classes := []struct {
		class            ResourceClass
		soft, hard       *uint64
		softKey, hardKey string
	}{
		{Blocks, limits.BlockSoft, limits.BlockHard, "bsoft", "bhard"},
		{Inodes, limits.InodeSoft, limits.InodeHard, "isoft", "ihard"},
		{RealtimeBlocks, limits.RTBlockSoft, limits.RTBlockHard, "rtbsoft", "rtbhard"},
	}

	var args []string
	for _, cs := range classes {
		if cs.soft == nil && cs.hard == nil {
			continue
		}
		current, err := ReadLimits(ctx, p.exec, req.Mountpoint, id, cs.class)
		if err != nil {
			return result, err
		}
		if cs.soft != nil && differs(*cs.soft, cs.class, current.Soft) {
			args = append(args, fmt.Sprintf("%s=%d", cs.softKey, *cs.soft))
		}
		if cs.hard != nil && differs(*cs.hard, cs.class, current.Hard) {
			args = append(args, fmt.Sprintf("%s=%d", cs.hardKey, *cs.hard))
		}
	}

	if len(args) > 0 {
		var sub string
		if id.IsDefault() {
			sub = fmt.Sprintf("limit %s -d %s", id.Type.Flag(), strings.Join(args, " "))
		} else {
			sub = fmt.Sprintf("limit %s %s %s", id.Type.Flag(), strings.Join(args, " "), id.Name)
		}
		if err := p.apply(ctx, sub, req, &result); err != nil {
			return result, err
		}
	}

	klog.V(2).InfoS("Reconcile finished",
		"type", id.Type.String(), "name", id.Name, "mountpoint", req.Mountpoint,
		"changed", result.Changed, "dryRun", req.DryRun)
	return result, nil
}

// apply issues one corrective subcommand, or records it as predicted
// under dry-run. Either way the change is counted.
func (p *Planner) apply(ctx context.Context, sub string, req Request, result *Result) error {
	if req.DryRun {
		klog.V(2).InfoS("Dry-run: skipping corrective command", "subcommand", sub)
		result.Changed = true
		result.Applied = append(result.Applied, sub)
		return nil
	}
	res, err := p.exec.Exec(ctx, sub, req.Mountpoint)
	if err != nil {
		return err
	}
	if res.Code != 0 {
		return &CommandError{Subcommand: sub, Mountpoint: req.Mountpoint, Result: res}
	}
	result.Changed = true
	result.Applied = append(result.Applied, sub)
	return nil
}

// differs reports whether a desired field value deviates from the
// current report value. Block-based desired values are supplied in
// bytes and normalized into the report's 1024-byte units before the
// comparison; an absent current value always differs.
func differs(desired uint64, class ResourceClass, current *uint64) bool {
	want := desired
	if class.BlockBased() {
		want = desired / 1024
	}
	return current == nil || *current != want
}
