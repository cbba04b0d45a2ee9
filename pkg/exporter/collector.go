package exporter

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/terminus-io/xfsquotactl/pkg/quota"
	"github.com/terminus-io/xfsquotactl/pkg/utils"
)

var (
	descBlocksUsed = prometheus.NewDesc(
		"xfsquota_blocks_used_kibibytes",
		"Block usage in 1024-byte units per identity",
		[]string{"mount_point", "quota_type", "name"}, nil,
	)
	descBlocksSoft = prometheus.NewDesc(
		"xfsquota_blocks_soft_kibibytes",
		"Block soft limit in 1024-byte units per identity",
		[]string{"mount_point", "quota_type", "name"}, nil,
	)
	descBlocksHard = prometheus.NewDesc(
		"xfsquota_blocks_hard_kibibytes",
		"Block hard limit in 1024-byte units per identity",
		[]string{"mount_point", "quota_type", "name"}, nil,
	)
	descInodesUsed = prometheus.NewDesc(
		"xfsquota_inodes_used",
		"Inode usage count per identity",
		[]string{"mount_point", "quota_type", "name"}, nil,
	)
	descInodesSoft = prometheus.NewDesc(
		"xfsquota_inodes_soft",
		"Inode soft limit count per identity",
		[]string{"mount_point", "quota_type", "name"}, nil,
	)
	descInodesHard = prometheus.NewDesc(
		"xfsquota_inodes_hard",
		"Inode hard limit count per identity",
		[]string{"mount_point", "quota_type", "name"}, nil,
	)
	descFSTotal = prometheus.NewDesc(
		"xfsquota_filesystem_total_bytes",
		"Total filesystem capacity in bytes",
		[]string{"mount_point"}, nil,
	)
	descFSUsed = prometheus.NewDesc(
		"xfsquota_filesystem_used_bytes",
		"Used filesystem capacity in bytes",
		[]string{"mount_point"}, nil,
	)
)

// ReportCollector translates xfs_quota report output into per-identity
// gauges, plus filesystem capacity gauges from statfs.
type ReportCollector struct {
	mountPoint string
	typ        quota.Type
	exec       quota.Executor
}

func NewReportCollector(mountPoint string, typ quota.Type, x quota.Executor) *ReportCollector {
	return &ReportCollector{
		mountPoint: mountPoint,
		typ:        typ,
		exec:       x,
	}
}

func (c *ReportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descBlocksUsed
	ch <- descBlocksSoft
	ch <- descBlocksHard
	ch <- descInodesUsed
	ch <- descInodesSoft
	ch <- descInodesHard
	ch <- descFSTotal
	ch <- descFSUsed
}

func (c *ReportCollector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()

	blockRows, err := quota.ReadReport(ctx, c.exec, c.mountPoint, c.typ, quota.Blocks)
	if err != nil {
		klog.ErrorS(err, "Failed to collect block metrics", "mountPoint", c.mountPoint)
	} else {
		for _, r := range blockRows {
			ch <- prometheus.MustNewConstMetric(descBlocksUsed, prometheus.GaugeValue, float64(r.Used),
				c.mountPoint, c.typ.String(), r.Name)
			ch <- prometheus.MustNewConstMetric(descBlocksSoft, prometheus.GaugeValue, float64(r.Soft),
				c.mountPoint, c.typ.String(), r.Name)
			ch <- prometheus.MustNewConstMetric(descBlocksHard, prometheus.GaugeValue, float64(r.Hard),
				c.mountPoint, c.typ.String(), r.Name)
		}
	}

	inodeRows, err := quota.ReadReport(ctx, c.exec, c.mountPoint, c.typ, quota.Inodes)
	if err != nil {
		klog.ErrorS(err, "Failed to collect inode metrics", "mountPoint", c.mountPoint)
	} else {
		for _, r := range inodeRows {
			ch <- prometheus.MustNewConstMetric(descInodesUsed, prometheus.GaugeValue, float64(r.Used),
				c.mountPoint, c.typ.String(), r.Name)
			ch <- prometheus.MustNewConstMetric(descInodesSoft, prometheus.GaugeValue, float64(r.Soft),
				c.mountPoint, c.typ.String(), r.Name)
			ch <- prometheus.MustNewConstMetric(descInodesHard, prometheus.GaugeValue, float64(r.Hard),
				c.mountPoint, c.typ.String(), r.Name)
		}
	}

	ds, err := utils.GetDiskUsage(c.mountPoint)
	if err != nil {
		klog.ErrorS(err, "Failed to read filesystem capacity", "mountPoint", c.mountPoint)
		return
	}
	ch <- prometheus.MustNewConstMetric(descFSTotal, prometheus.GaugeValue, float64(ds.Total), c.mountPoint)
	ch <- prometheus.MustNewConstMetric(descFSUsed, prometheus.GaugeValue, float64(ds.Used), c.mountPoint)
}
