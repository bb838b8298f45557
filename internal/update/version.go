package update

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed dotted version such as "1.0.0" or "1.0.0.148".
// Any number of segments is accepted; missing trailing segments compare as zero.
type Version struct {
	Segments []Segment
	Raw      string
}

// Segment is one dot-separated part of a version. Number holds the leading
// digits and Tail whatever follows them ("rc1" in "0rc1").
type Segment struct {
	Number uint64
	Tail   string
}

// ParseVersion parses a dotted version string.
// Accepts versions with or without 'v' prefix (e.g., "1.2.3" or "v1.2.3").
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	body := NormalizeVersion(s)
	if body == "" {
		return Version{}, fmt.Errorf("invalid version format: %s", s)
	}

	parts := strings.Split(body, ".")
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return Version{}, fmt.Errorf("invalid version format: %s", s)
		}
		seg, err := parseSegment(part)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version format: %s: %w", s, err)
		}
		segments = append(segments, seg)
	}

	return Version{Segments: segments, Raw: s}, nil
}

func parseSegment(part string) (Segment, error) {
	end := 0
	for end < len(part) && part[end] >= '0' && part[end] <= '9' {
		end++
	}
	var n uint64
	if end > 0 {
		parsed, err := strconv.ParseUint(part[:end], 10, 64)
		if err != nil {
			return Segment{}, err
		}
		n = parsed
	}
	return Segment{Number: n, Tail: part[end:]}, nil
}

// String returns the normalized version without the 'v' prefix.
func (v Version) String() string {
	parts := make([]string, len(v.Segments))
	for i, seg := range v.Segments {
		parts[i] = strconv.FormatUint(seg.Number, 10) + seg.Tail
	}
	return strings.Join(parts, ".")
}

// Compare compares two versions.
// Returns:
//
//	-1 if v < other
//	 0 if v == other
//	 1 if v > other
//
// Segments are compared left to right; the shorter version is padded with zeros.
func (v Version) Compare(other Version) int {
	n := len(v.Segments)
	if len(other.Segments) > n {
		n = len(other.Segments)
	}
	for i := 0; i < n; i++ {
		if c := compareSegment(v.segment(i), other.segment(i)); c != 0 {
			return c
		}
	}
	return 0
}

func (v Version) segment(i int) Segment {
	if i < len(v.Segments) {
		return v.Segments[i]
	}
	return Segment{}
}

// LessThan returns true if v < other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// GreaterThan returns true if v > other.
func (v Version) GreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// Equal returns true if v == other.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// CompareVersions compares two version strings.
// Returns an error if either version cannot be parsed.
func CompareVersions(a, b string) (int, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", a, err)
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

// NormalizeVersion removes the 'v' prefix if present.
func NormalizeVersion(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "v") || strings.HasPrefix(s, "V") {
		return s[1:]
	}
	return s
}

// IsDevelopmentVersion reports whether the version string marks an unstable
// build that never takes part in update comparison.
func IsDevelopmentVersion(s string) bool {
	return strings.Contains(s, "@") || strings.Contains(s, "SNAPSHOT")
}

func compareUint(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func compareSegment(a, b Segment) int {
	if c := compareUint(a.Number, b.Number); c != 0 {
		return c
	}
	// A bare number is greater than the same number with a tail ("1" > "1rc1").
	if a.Tail == b.Tail {
		return 0
	}
	if a.Tail == "" {
		return 1
	}
	if b.Tail == "" {
		return -1
	}
	if a.Tail < b.Tail {
		return -1
	}
	return 1
}
