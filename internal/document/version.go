package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a tor version number: major.minor.micro[.patch][-status].
type Version struct {
	Major, Minor, Micro, Patch int
	Status                     string
	raw                        string
}

// ParseVersion parses versions like "0.4.8.10", "0.4.9.1-alpha" or
// "Tor 0.4.8.10 (git-abcdef)".
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	v := strings.TrimPrefix(raw, "Tor ")
	if idx := strings.IndexByte(v, ' '); idx >= 0 {
		v = v[:idx]
	}
	var status string
	if idx := strings.IndexByte(v, '-'); idx >= 0 {
		v, status = v[:idx], v[idx+1:]
	}
	parts := strings.Split(v, ".")
	if len(parts) < 3 || len(parts) > 4 {
		return Version{}, fmt.Errorf("malformed tor version %q", s)
	}
	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("malformed tor version %q", s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Micro: nums[2], Patch: nums[3], Status: status, raw: raw}, nil
}

// Compare returns -1, 0 or 1. Numeric components are compared first, then
// status tags as byte strings, so a release sorts before its tagged builds.
func (v Version) Compare(o Version) int {
	for _, pair := range [][2]int{{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Micro, o.Micro}, {v.Patch, o.Patch}} {
		if pair[0] < pair[1] {
			return -1
		}
		if pair[0] > pair[1] {
			return 1
		}
	}
	return strings.Compare(v.Status, o.Status)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

func (v Version) String() string {
	if v.raw != "" {
		return v.raw
	}
	s := fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Micro, v.Patch)
	if v.Status != "" {
		s += "-" + v.Status
	}
	return s
}
