package mount

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

const mountTable = "/proc/mounts"

// ErrNotFound is returned when no mount table entry matches the
// requested mountpoint. Callers distinguish this from a matching entry
// with the wrong filesystem type.
var ErrNotFound = errors.New("mountpoint not found")

// Info is a snapshot of one mount table entry, read once per run.
type Info struct {
	Spec       string
	Mountpoint string
	FSType     string
	Options    []string
	Freq       string
	Passno     string
}

// HasAnyOption reports whether at least one of the given mount options
// is present on the entry.
func (i *Info) HasAnyOption(opts []string) bool {
	for _, want := range opts {
		for _, have := range i.Options {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Resolve scans the live mount table and returns the entry whose
// mountpoint field exactly matches path.
func Resolve(path string) (*Info, error) {
	return resolveFrom(mountTable, path)
}

func resolveFrom(table, path string) (*Info, error) {
	f, err := os.Open(table)
	if err != nil {
		return nil, fmt.Errorf("failed to open mount table %s: %w", table, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 6 || fields[1] != path {
			continue
		}
		return &Info{
			Spec:       fields[0],
			Mountpoint: fields[1],
			FSType:     fields[2],
			Options:    strings.Split(fields[3], ","),
			Freq:       fields[4],
			Passno:     fields[5],
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mount table %s: %w", table, err)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}
