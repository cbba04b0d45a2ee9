package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/terminus-io/xfsquotactl/pkg/exporter"
	"github.com/terminus-io/xfsquotactl/pkg/quota"
)

type exportOptions struct {
	typeName    string
	mountpoint  string
	metricsAddr string
	backend     string
}

func newExportCommand() *cobra.Command {
	opts := &exportOptions{}

	c := &cobra.Command{
		Use:   "export",
		Short: "Serve quota usage and limits as Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	fs := c.Flags()
	fs.StringVar(&opts.typeName, "type", "project", "Quota type to export: user, group or project")
	fs.StringVar(&opts.mountpoint, "mountpoint", "", "XFS mountpoint to export metrics for")
	fs.StringVar(&opts.metricsAddr, "listen", ":9201", "Metrics listen address")
	fs.StringVar(&opts.backend, "backend", "report", "Collector backend: report (xfs_quota) or syscall (project only)")
	_ = c.MarkFlagRequired("mountpoint")

	return c
}

func runExport(cmd *cobra.Command, opts *exportOptions) error {
	typ, err := quota.TypeFromString(opts.typeName)
	if err != nil {
		return err
	}

	var collector prometheus.Collector
	switch opts.backend {
	case "report":
		collector = exporter.NewReportCollector(opts.mountpoint, typ, quota.NewXFSCLI())
	case "syscall":
		if typ != quota.Project {
			return fmt.Errorf("the syscall backend only supports project quotas")
		}
		collector = exporter.NewSyscallCollector(opts.mountpoint)
	default:
		return fmt.Errorf("invalid backend %q, expected report or syscall", opts.backend)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return exporter.StartMetricsServer(ctx, opts.metricsAddr, collector)
	})

	if err := g.Wait(); err != nil {
		klog.ErrorS(err, "Exporter exited with error")
		return err
	}
	klog.Info("Exporter stopped gracefully")
	return nil
}
