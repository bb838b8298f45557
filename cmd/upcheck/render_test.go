package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/muesli/reflow/wordwrap"

	apperrors "upcheck/internal/errors"
	"upcheck/internal/update"
)

func mustDescriptor(t *testing.T, version string, force bool) *update.Descriptor {
	t.Helper()
	d, err := update.NewDescriptor(update.DescriptorSpec{
		Channel:     update.ChannelGitHub,
		Version:     version,
		DownloadURL: "https://github.com/org/app/releases/download/v" + version + "/app.jar",
		Force:       force,
		FetchedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	return d
}

func TestNewStatusReportCarriesErrorCode(t *testing.T) {
	state := update.State{
		Channel:   update.ChannelGitee,
		LastError: apperrors.New(apperrors.CodeAssetNotFound, "no .jar asset in release", nil),
	}
	r := newStatusReport(state, update.Running{Version: "1.0.0"})
	if r.ErrorCode != string(apperrors.CodeAssetNotFound) {
		t.Errorf("ErrorCode = %q", r.ErrorCode)
	}
	if r.Development {
		t.Error("release build reported as development")
	}
}

func TestStatusBadge(t *testing.T) {
	latest := mustDescriptor(t, "2.0.0", false)
	tests := []struct {
		name   string
		report statusReport
		want   string
	}{
		{"failed", statusReport{Error: "boom"}, "check failed"},
		{"unknown", statusReport{}, "no release known"},
		{"outdated", statusReport{Latest: latest, Outdated: true}, "update available: 2.0.0"},
		{"current", statusReport{Latest: latest}, "up to date"},
		{"stale but failed", statusReport{Latest: latest, Error: "boom"}, "up to date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusBadge(tt.report); !strings.Contains(got, tt.want) {
				t.Errorf("statusBadge() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderStatusWithoutHash(t *testing.T) {
	r := statusReport{
		Channel:   update.ChannelIndex,
		Running:   "1.0.0",
		Latest:    mustDescriptor(t, "1.1.0", true),
		Outdated:  true,
		CheckedAt: time.Now().Add(-2 * time.Minute),
	}
	out := renderStatus(r, 200)
	for _, want := range []string{"not published", "Force", "minutes ago", "1.1.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestRenderStatusWrapsError(t *testing.T) {
	msg := strings.Repeat("transport failure while contacting the mirror ", 4)
	out := renderStatus(statusReport{Channel: "github", Running: "1.0.0", Error: msg}, 40)
	lines := strings.Split(wordwrap.String(msg, 40), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected message to need wrapping")
	}
	for _, line := range lines {
		if !strings.Contains(out, strings.TrimSpace(line)) {
			t.Errorf("expected wrapped line %q in:\n%s", line, out)
		}
	}
}

func TestTruncateURL(t *testing.T) {
	url := "https://github.com/org/app/releases/download/v1.0.0/" + strings.Repeat("a", 80) + ".jar"
	got := truncateURL(url, 40)
	if len([]rune(got)) >= len(url) || !strings.HasSuffix(got, "…") {
		t.Errorf("expected truncated url, got %q", got)
	}
	if got := truncateURL("https://x.example/a.jar", 0); got != "https://x.example/a.jar" {
		t.Errorf("short url changed: %q", got)
	}
}

func TestMarkdownRendererPlainFallback(t *testing.T) {
	render := buildMarkdownRenderer("plain", 20)
	in := "release notes that are long enough to wrap"
	if got := render(in); got != wordwrap.String(in, 20) {
		t.Errorf("plain renderer = %q", got)
	}
}

func TestCheckErrorPrefixesCode(t *testing.T) {
	err := checkError(apperrors.New(apperrors.CodeSchema, "release is missing tag_name", nil))
	if !strings.HasPrefix(err.Error(), "schema: ") {
		t.Errorf("unexpected error %q", err)
	}
	plain := errors.New("plain")
	if checkError(plain) != plain {
		t.Error("uncoded error should pass through")
	}
}
