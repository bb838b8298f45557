package update

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Segment
		wantErr bool
	}{
		{
			name:  "simple version",
			input: "1.2.3",
			want:  []Segment{{Number: 1}, {Number: 2}, {Number: 3}},
		},
		{
			name:  "with v prefix",
			input: "v1.2.3",
			want:  []Segment{{Number: 1}, {Number: 2}, {Number: 3}},
		},
		{
			name:  "build number suffix",
			input: "1.0.0.148",
			want:  []Segment{{Number: 1}, {Number: 0}, {Number: 0}, {Number: 148}},
		},
		{
			name:  "single segment",
			input: "7",
			want:  []Segment{{Number: 7}},
		},
		{
			name:  "segment with tail",
			input: "2.0rc1",
			want:  []Segment{{Number: 2}, {Number: 0, Tail: "rc1"}},
		},
		{
			name:  "surrounding whitespace",
			input: "  3.1 ",
			want:  []Segment{{Number: 3}, {Number: 1}},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "only prefix", input: "v", wantErr: true},
		{name: "empty segment", input: "1..2", wantErr: true},
		{name: "trailing dot", input: "1.2.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if d := cmp.Diff(tt.want, got.Segments); d != "" {
				t.Errorf("ParseVersion(%q) segments mismatch (-want +got):\n%s", tt.input, d)
			}
		})
	}
}

func TestVersionString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v1.2.3", "1.2.3"},
		{"1.0.0.148", "1.0.0.148"},
		{"2.0rc1", "2.0rc1"},
	}
	for _, tt := range tests {
		v, err := ParseVersion(tt.input)
		if err != nil {
			t.Fatalf("ParseVersion(%q) error: %v", tt.input, err)
		}
		if got := v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{name: "equal", a: "1.0.0", b: "1.0.0", want: 0},
		{name: "equal with prefix", a: "v1.0.0", b: "1.0.0", want: 0},
		{name: "missing segment is zero", a: "1.0", b: "1.0.0", want: 0},
		{name: "missing segments are zero", a: "1", b: "1.0.0.0", want: 0},
		{name: "major less", a: "1.9.9", b: "2.0.0", want: -1},
		{name: "minor greater", a: "1.10.0", b: "1.9.0", want: 1},
		{name: "numeric not lexicographic", a: "1.0.10", b: "1.0.9", want: 1},
		{name: "build number", a: "1.0.0.148", b: "1.0.0.147", want: 1},
		{name: "build number vs shorter", a: "1.0.0", b: "1.0.0.1", want: -1},
		{name: "tail below bare number", a: "2.0rc1", b: "2.0", want: -1},
		{name: "tails lexicographic", a: "2.0rc1", b: "2.0rc2", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompareVersions(tt.a, tt.b)
			if err != nil {
				t.Fatalf("CompareVersions(%q, %q) error: %v", tt.a, tt.b, err)
			}
			if got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			// Antisymmetry.
			rev, _ := CompareVersions(tt.b, tt.a)
			if rev != -tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.b, tt.a, rev, -tt.want)
			}
		})
	}
}

func TestVersionCompareTransitive(t *testing.T) {
	ordered := []string{"0.9", "1", "1.0.0.1", "1.0.1", "1.2", "1.10", "2.0rc1", "2.0", "10.0"}
	for i := range ordered {
		for j := range ordered {
			got, err := CompareVersions(ordered[i], ordered[j])
			if err != nil {
				t.Fatalf("CompareVersions error: %v", err)
			}
			want := compareInt(i, j)
			if got != want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", ordered[i], ordered[j], got, want)
			}
		}
	}
}

func TestCompareVersionsInvalid(t *testing.T) {
	if _, err := CompareVersions("", "1.0"); err == nil {
		t.Error("expected error for empty version")
	}
	if _, err := CompareVersions("1.0", "1..0"); err == nil {
		t.Error("expected error for malformed version")
	}
}

func TestVersionHelpers(t *testing.T) {
	a, _ := ParseVersion("1.0.0")
	b, _ := ParseVersion("1.0.1")
	if !a.LessThan(b) || a.GreaterThan(b) || a.Equal(b) {
		t.Error("1.0.0 should be less than 1.0.1")
	}
	c, _ := ParseVersion("v1.0")
	if !a.Equal(c) {
		t.Error("1.0.0 should equal v1.0")
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := map[string]string{
		"v1.0.0":   "1.0.0",
		"V2":       "2",
		"1.0.0":    "1.0.0",
		" v1.2.3 ": "1.2.3",
	}
	for in, want := range tests {
		if got := NormalizeVersion(in); got != want {
			t.Errorf("NormalizeVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsDevelopmentVersion(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"1.0.0", false},
		{"1.0.0.148", false},
		{"1.0.0@abc1234", true},
		{"1.1-SNAPSHOT", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsDevelopmentVersion(tt.version); got != tt.want {
			t.Errorf("IsDevelopmentVersion(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func compareInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
