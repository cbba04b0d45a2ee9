package quota

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/terminus-io/xfsquotactl/pkg/mount"
)

// Overridable in tests.
var (
	projectsFile = "/etc/projects"
	projidFile   = "/etc/projid"
)

// Type is one of the three xfs quota subject kinds. Each variant owns
// its xfs_quota type flag, its default subject name, the mount options
// that enable it, and its own existence validation.
type Type interface {
	String() string
	Flag() string
	Default() string
	MountOptions() []string
	Validate(name string) error
}

var (
	User    Type = userType{}
	Group   Type = groupType{}
	Project Type = projectType{}
)

// TypeFromString maps a caller-supplied type name onto its variant.
func TypeFromString(s string) (Type, error) {
	switch s {
	case "user":
		return User, nil
	case "group":
		return Group, nil
	case "project":
		return Project, nil
	default:
		return nil, fmt.Errorf("invalid quota type %q, expected user, group or project", s)
	}
}

type userType struct{}

func (userType) String() string  { return "user" }
func (userType) Flag() string    { return "-u" }
func (userType) Default() string { return "root" }
func (userType) MountOptions() []string {
	return []string{"uquota", "usrquota", "quota", "uqnoenforce", "qnoenforce"}
}
func (userType) Validate(name string) error {
	if _, err := user.Lookup(name); err != nil {
		return fmt.Errorf("user %q does not exist", name)
	}
	return nil
}

type groupType struct{}

func (groupType) String() string  { return "group" }
func (groupType) Flag() string    { return "-g" }
func (groupType) Default() string { return "root" }
func (groupType) MountOptions() []string {
	return []string{"gquota", "grpquota", "gqnoenforce"}
}
func (groupType) Validate(name string) error {
	if _, err := user.LookupGroup(name); err != nil {
		return fmt.Errorf("group %q does not exist", name)
	}
	return nil
}

type projectType struct{}

func (projectType) String() string  { return "project" }
func (projectType) Flag() string    { return "-p" }
func (projectType) Default() string { return "#0" }
func (projectType) MountOptions() []string {
	return []string{"pquota", "prjquota", "pqnoenforce"}
}

// Validate requires the project mapping files to exist and the name to
// resolve in the projid mapping. The default sentinel needs neither.
func (p projectType) Validate(name string) error {
	if name == p.Default() {
		return nil
	}
	for _, f := range []string{projectsFile, projidFile} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("path %q does not exist", f)
		}
	}
	if _, err := lookupProjectID(projidFile, name); err != nil {
		return err
	}
	return nil
}

// lookupProjectID resolves a project name in the projid mapping, lines
// of the form name:id[:...].
func lookupProjectID(path, name string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 2 || fields[0] != name {
			continue
		}
		id, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid project id for %q in %s: %v", name, path, err)
		}
		return uint32(id), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return 0, fmt.Errorf("entry %q has not been defined in %s", name, path)
}

// Identity is a validated quota subject.
type Identity struct {
	Type Type
	Name string
}

// IsDefault reports whether the identity is the type's default
// subject, which switches the limit command into its bundled -d form.
func (i Identity) IsDefault() bool {
	return i.Name == i.Type.Default()
}

// ResolveIdentity normalizes and validates a quota subject against the
// system identity database (or project mapping files) and confirms the
// mount carries an enabling option for the type.
func ResolveIdentity(typ Type, name string, mnt *mount.Info) (Identity, error) {
	if name == "" {
		name = typ.Default()
	}

	if !mnt.HasAnyOption(typ.MountOptions()) {
		opts := strings.Join(typ.MountOptions(), "/")
		if typ == Group {
			// The group option set trips people up most often, so
			// include what the mount actually has.
			return Identity{}, fmt.Errorf(
				"%s is not mounted with the %s option, current options: %s",
				mnt.Mountpoint, opts, strings.Join(mnt.Options, ","))
		}
		return Identity{}, fmt.Errorf("%s is not mounted with the %s option", mnt.Mountpoint, opts)
	}

	if err := typ.Validate(name); err != nil {
		return Identity{}, err
	}
	return Identity{Type: typ, Name: name}, nil
}

// ProjectAssigned reports whether the project association for name is
// already set on the mountpoint. An unset association is a pending
// state transition, not an error.
func ProjectAssigned(ctx context.Context, x Executor, mountpoint, name string) (bool, error) {
	sub := "project " + name
	res, err := x.Exec(ctx, sub, mountpoint)
	if err != nil {
		return false, err
	}
	if res.Code != 0 {
		return false, &CommandError{Subcommand: sub, Mountpoint: mountpoint, Result: res}
	}
	marker := fmt.Sprintf("Project Id '%s' - is not set.", name)
	for _, line := range res.Stdout {
		if strings.Contains(line, marker) {
			return false, nil
		}
	}
	return true, nil
}
