package update

import (
	"context"
	"net/http"
	"os"
	"testing"

	apperrors "upcheck/internal/errors"
)

func mirrorRelease(serverURL string) ReleaseInfo {
	return ReleaseInfo{
		TagName: "v1.4.0",
		Body:    "mirror notes",
		Assets: []ReleaseAsset{
			{Name: "CCL-1.4.0.jar.sha256", BrowserDownloadURL: serverURL + "/files/CCL-1.4.0.jar.sha256"},
			{Name: "CCL-1.4.0.jar", BrowserDownloadURL: serverURL + "/files/CCL-1.4.0.jar"},
		},
	}
}

func newMirrorServer(t *testing.T, checksum http.HandlerFunc) string {
	t.Helper()
	routes := map[string]http.HandlerFunc{}
	server, _ := newRouteServer(t, routes)
	routes["/release"] = jsonHandler(mirrorRelease(server.URL))
	if checksum != nil {
		routes["/files/CCL-1.4.0.jar.sha256"] = checksum
	}
	return server.URL
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error: %v", dir, err)
	}
	for _, e := range entries {
		t.Errorf("leftover temp file %s", e.Name())
	}
}

func TestMirrorFetcherFetch(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bare hash", body: testHash},
		{name: "uppercase with newline", body: "  " + testHashUpper + "\n"},
		{name: "sha256sum format", body: testHash + "  CCL-1.4.0.jar\n"},
		{name: "binary marker", body: testHashUpper + " *CCL-1.4.0.jar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := newMirrorServer(t, textHandler(tt.body))
			tmp := t.TempDir()

			f := NewMirrorFetcher(WithTempDir(tmp))
			desc, err := f.Fetch(context.Background(), Channel{ID: ChannelGitee, Family: FamilyMirror, URL: base + "/release"})
			if err != nil {
				t.Fatalf("Fetch() error: %v", err)
			}
			if desc.Hash() != testHash {
				t.Errorf("Hash() = %q, want %q", desc.Hash(), testHash)
			}
			if desc.Version != "1.4.0" {
				t.Errorf("Version = %q, want 1.4.0", desc.Version)
			}
			if desc.DownloadURL != base+"/files/CCL-1.4.0.jar" {
				t.Errorf("DownloadURL = %q", desc.DownloadURL)
			}
			if desc.Notes != "mirror notes" {
				t.Errorf("Notes = %q, want %q", desc.Notes, "mirror notes")
			}
			assertDirEmpty(t, tmp)
		})
	}
}

func TestMirrorFetcherChecksumFailures(t *testing.T) {
	tests := []struct {
		name     string
		checksum http.HandlerFunc
	}{
		{name: "missing checksum file", checksum: nil},
		{name: "server error", checksum: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{name: "empty file", checksum: textHandler("\n")},
		{name: "not hex", checksum: textHandler("not-a-hash")},
		{name: "too short", checksum: textHandler("abc123")},
		{name: "other file listed", checksum: textHandler(testHash + "  other.jar\n" + testHash + "  another.jar\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := newMirrorServer(t, tt.checksum)
			tmp := t.TempDir()

			f := NewMirrorFetcher(WithTempDir(tmp))
			desc, err := f.Fetch(context.Background(), Channel{ID: ChannelGitee, Family: FamilyMirror, URL: base + "/release"})
			if !apperrors.IsCode(err, apperrors.CodeHashUnavailable) {
				t.Fatalf("Fetch() error = %v, want hash_unavailable", err)
			}
			if desc != nil {
				t.Errorf("Fetch() returned a descriptor alongside an error")
			}
			assertDirEmpty(t, tmp)
		})
	}
}

func TestMirrorFetcherUsesSystemTempDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	base := newMirrorServer(t, textHandler(testHash))
	if _, err := NewMirrorFetcher().Fetch(context.Background(), Channel{ID: ChannelGitee, Family: FamilyMirror, URL: base + "/release"}); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	assertDirEmpty(t, tmp)
}

func TestMirrorFetcherNoArtifact(t *testing.T) {
	routes := map[string]http.HandlerFunc{
		"/release": jsonHandler(ReleaseInfo{
			TagName: "v1.0.0",
			Assets:  []ReleaseAsset{{Name: "readme.md", BrowserDownloadURL: "https://example.com/readme.md"}},
		}),
	}
	server, hits := newRouteServer(t, routes)

	_, err := NewMirrorFetcher().Fetch(context.Background(), Channel{ID: ChannelGitee, Family: FamilyMirror, URL: server.URL + "/release"})
	if !apperrors.IsCode(err, apperrors.CodeAssetNotFound) {
		t.Fatalf("Fetch() error = %v, want asset_not_found", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}
