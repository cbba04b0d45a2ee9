package cmd

import (
	"flag"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// NewRootCommand builds the xfsquotactl command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xfsquotactl",
		Short: "XFS quota reconciler",
		Long: `xfsquotactl reconciles XFS block, inode and realtime block quota
limits for a user, group or project identity against a declared desired
state, issuing only the corrective xfs_quota commands needed to converge.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			flag.Parse()
		},
		SilenceUsage: true,
	}

	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	_ = flag.Set("logtostderr", "true")

	rootCmd.AddCommand(newReconcileCommand())
	rootCmd.AddCommand(newExportCommand())

	return rootCmd
}
