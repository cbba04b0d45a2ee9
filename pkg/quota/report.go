package quota

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// ReadLimits runs a quota report for one identity and resource class
// and extracts the current soft/hard pair. Values are left in the
// tool's native units (1024-byte blocks for block-based classes).
// State is never cached; callers re-read on every run.
func ReadLimits(ctx context.Context, x Executor, mountpoint string, id Identity, class ResourceClass) (LimitPair, error) {
	sub := fmt.Sprintf("report %s %s", id.Type.Flag(), class.ReportFlag())
	res, err := x.Exec(ctx, sub, mountpoint)
	if err != nil {
		return LimitPair{}, err
	}
	if res.Code != 0 {
		return LimitPair{}, &CommandError{Subcommand: sub, Mountpoint: mountpoint, Result: res}
	}

	var pair LimitPair
	for _, line := range res.Stdout {
		fields := strings.Fields(line)
		if len(fields) <= 3 || fields[0] != id.Name {
			continue
		}
		soft, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			continue
		}
		hard, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			continue
		}
		pair.Soft = &soft
		pair.Hard = &hard
	}
	if pair.Soft == nil {
		// No row for the identity: no current limit, distinct from a
		// current limit of zero.
		klog.V(4).InfoS("Identity absent from quota report", "name", id.Name, "class", class.String())
	}
	return pair, nil
}

// ReportRow is one parsed identity row from a full quota report, used
// by the metrics exporter.
type ReportRow struct {
	Name string
	Used uint64
	Soft uint64
	Hard uint64
}

// ReadReport runs a quota report for every identity of the given type
// and returns all parseable rows. Header and separator lines do not
// tokenize into numeric columns and are skipped.
func ReadReport(ctx context.Context, x Executor, mountpoint string, typ Type, class ResourceClass) ([]ReportRow, error) {
	sub := fmt.Sprintf("report %s %s", typ.Flag(), class.ReportFlag())
	res, err := x.Exec(ctx, sub, mountpoint)
	if err != nil {
		return nil, err
	}
	if res.Code != 0 {
		return nil, &CommandError{Subcommand: sub, Mountpoint: mountpoint, Result: res}
	}

	var rows []ReportRow
	for _, line := range res.Stdout {
		fields := strings.Fields(line)
		if len(fields) <= 3 {
			continue
		}
		used, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		soft, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			continue
		}
		hard, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			continue
		}
		rows = append(rows, ReportRow{Name: fields[0], Used: used, Soft: soft, Hard: hard})
	}
	return rows, nil
}
