package utils

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"k8s.io/apimachinery/pkg/api/resource"
)

// ParseSize converts a human-readable size into bytes. It accepts the
// xfs_quota style single-letter suffixes ("1g", "512m", "2K"), the
// equivalent resource.Quantity forms ("1Gi", "512Mi"), and bare byte
// counts. Single-letter suffixes are binary: "1g" is 2^30 bytes.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	q, err := resource.ParseQuantity(normalizeSuffix(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %v", s, err)
	}
	if q.Sign() < 0 {
		return 0, fmt.Errorf("size %q must not be negative", s)
	}
	return uint64(q.Value()), nil
}

// normalizeSuffix rewrites a trailing single-letter unit into the
// binary suffix resource.ParseQuantity understands, "1g" -> "1Gi".
func normalizeSuffix(s string) string {
	last := rune(s[len(s)-1])
	switch unicode.ToLower(last) {
	case 'k', 'm', 'g', 't', 'p', 'e':
		return s[:len(s)-1] + strings.ToUpper(string(last)) + "i"
	}
	return s
}
