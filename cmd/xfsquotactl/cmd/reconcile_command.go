package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/terminus-io/xfsquotactl/pkg/quota"
	"github.com/terminus-io/xfsquotactl/pkg/utils"
)

type reconcileOptions struct {
	typeName   string
	name       string
	mountpoint string
	bsoft      string
	bhard      string
	isoft      uint64
	ihard      uint64
	rtbsoft    string
	rtbhard    string
	state      string
	dryRun     bool
}

func newReconcileCommand() *cobra.Command {
	opts := &reconcileOptions{}

	c := &cobra.Command{
		Use:   "reconcile",
		Short: "Converge quota limits for one identity on one mountpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}

	fs := c.Flags()
	fs.StringVar(&opts.typeName, "type", "", "Quota type: user, group or project")
	fs.StringVar(&opts.name, "name", "", "Identity name, defaults per type")
	fs.StringVar(&opts.mountpoint, "mountpoint", "", "XFS mountpoint to reconcile on")
	fs.StringVar(&opts.bsoft, "bsoft", "", "Block soft limit, human readable size")
	fs.StringVar(&opts.bhard, "bhard", "", "Block hard limit, human readable size")
	fs.Uint64Var(&opts.isoft, "isoft", 0, "Inode soft limit")
	fs.Uint64Var(&opts.ihard, "ihard", 0, "Inode hard limit")
	fs.StringVar(&opts.rtbsoft, "rtbsoft", "", "Realtime block soft limit, human readable size")
	fs.StringVar(&opts.rtbhard, "rtbhard", "", "Realtime block hard limit, human readable size")
	fs.StringVar(&opts.state, "state", "present", "Desired state: present or absent")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Predict change without mutating anything")
	_ = c.MarkFlagRequired("type")
	_ = c.MarkFlagRequired("mountpoint")

	return c
}

func runReconcile(cmd *cobra.Command, opts *reconcileOptions) error {
	typ, err := quota.TypeFromString(opts.typeName)
	if err != nil {
		return err
	}

	limits := quota.DesiredLimits{}
	switch quota.State(opts.state) {
	case quota.StatePresent, quota.StateAbsent:
		limits.State = quota.State(opts.state)
	default:
		return fmt.Errorf("invalid state %q, expected present or absent", opts.state)
	}

	fs := cmd.Flags()
	sizeFields := []struct {
		flag  string
		raw   string
		field **uint64
	}{
		{"bsoft", opts.bsoft, &limits.BlockSoft},
		{"bhard", opts.bhard, &limits.BlockHard},
		{"rtbsoft", opts.rtbsoft, &limits.RTBlockSoft},
		{"rtbhard", opts.rtbhard, &limits.RTBlockHard},
	}
	for _, f := range sizeFields {
		if !fs.Changed(f.flag) {
			continue
		}
		v, err := utils.ParseSize(f.raw)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", f.flag, err)
		}
		*f.field = &v
	}
	if fs.Changed("isoft") {
		limits.InodeSoft = &opts.isoft
	}
	if fs.Changed("ihard") {
		limits.InodeHard = &opts.ihard
	}

	// xfs_quota expert mode needs root even for reports.
	if os.Geteuid() != 0 {
		return fmt.Errorf("reconciling quotas requires root privileges")
	}

	planner := quota.NewPlanner(quota.NewXFSCLI())
	result, err := planner.Reconcile(cmd.Context(), quota.Request{
		Type:       typ,
		Name:       opts.name,
		Mountpoint: opts.mountpoint,
		Limits:     limits,
		DryRun:     opts.dryRun,
	})
	if err != nil {
		return err
	}

	for _, sub := range result.Applied {
		klog.V(2).InfoS("Corrective command", "subcommand", sub, "dryRun", opts.dryRun)
	}
	if result.Changed {
		fmt.Fprintln(cmd.OutOrStdout(), "changed")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "unchanged")
	}
	return nil
}
