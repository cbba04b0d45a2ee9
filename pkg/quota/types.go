package quota

// ResourceClass selects one of the three limit families xfs_quota
// tracks per identity.
type ResourceClass int

const (
	Blocks ResourceClass = iota
	Inodes
	RealtimeBlocks
)

// ReportFlag returns the xfs_quota report flag for the class.
func (c ResourceClass) ReportFlag() string {
	switch c {
	case Inodes:
		return "-i"
	case RealtimeBlocks:
		return "-r"
	default:
		return "-b"
	}
}

// BlockBased reports whether the class is reported in 1024-byte units.
// Desired byte values must be floor-divided by 1024 before being
// compared against report output for these classes.
func (c ResourceClass) BlockBased() bool {
	return c != Inodes
}

func (c ResourceClass) String() string {
	switch c {
	case Inodes:
		return "inodes"
	case RealtimeBlocks:
		return "realtime-blocks"
	default:
		return "blocks"
	}
}

// LimitPair holds the soft and hard limits read for one identity and
// resource class, in the tool's native units. A nil field means the
// identity had no row in the report, which is distinct from a zero
// limit.
type LimitPair struct {
	Soft *uint64
	Hard *uint64
}

// State is the overall desired state of the quota limits.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// DesiredLimits carries the caller-declared limit targets. Block and
// realtime-block fields are in bytes, inode fields are counts. Nil
// fields were not declared and participate in no comparison. StateAbsent
// forces all six fields to zero.
type DesiredLimits struct {
	BlockSoft   *uint64
	BlockHard   *uint64
	InodeSoft   *uint64
	InodeHard   *uint64
	RTBlockSoft *uint64
	RTBlockHard *uint64
	State       State
}

// Result is the outcome of one reconcile pass.
type Result struct {
	// Changed is true if any corrective command was issued, or, under
	// dry-run, would have been issued.
	Changed bool
	// Applied lists the xfs_quota subcommands issued (or predicted
	// under dry-run), in order.
	Applied []string
}
