package exporter

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	terminus_quota "github.com/terminus-io/quota"
	"k8s.io/klog/v2"
)

var maxProjectID = uint32(999999999)

// SyscallCollector reads project quotas through the quotactl syscall
// wrapper instead of shelling out to xfs_quota. Project quotas only;
// rows are keyed by numeric project id.
type SyscallCollector struct {
	mountPoint string
}

func NewSyscallCollector(mountPoint string) *SyscallCollector {
	return &SyscallCollector{mountPoint: mountPoint}
}

func (c *SyscallCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descBlocksUsed
	ch <- descBlocksHard
	ch <- descInodesUsed
}

func (c *SyscallCollector) Collect(ch chan<- prometheus.Metric) {
	quotaInfos, err := terminus_quota.ListQuotas(c.mountPoint, terminus_quota.ProjQuota, maxProjectID)
	if err != nil {
		klog.ErrorS(err, "Failed to list project quotas", "mountPoint", c.mountPoint)
		return
	}
	for _, r := range quotaInfos {
		name := fmt.Sprintf("#%d", r.ID)
		ch <- prometheus.MustNewConstMetric(descBlocksUsed, prometheus.GaugeValue, float64(r.CurrentBlocks),
			c.mountPoint, "project", name)
		ch <- prometheus.MustNewConstMetric(descBlocksHard, prometheus.GaugeValue, float64(r.BlockHardLimit),
			c.mountPoint, "project", name)
		ch <- prometheus.MustNewConstMetric(descInodesUsed, prometheus.GaugeValue, float64(r.CurrentInodes),
			c.mountPoint, "project", name)
	}
}
