package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	apperrors "upcheck/internal/errors"
)

// indexVersionInfo is the first response of the index family.
type indexVersionInfo struct {
	LatestVersion string     `json:"latest_version"`
	LatestBuild   flexString `json:"latest_build"`
	ForceUpdate   bool       `json:"force_update"`
	Notes         string     `json:"notes,omitempty"`
}

// indexContents is the second response: the files published for a version.
type indexContents struct {
	Contents []indexEntry `json:"contents"`
}

type indexEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// flexString decodes a JSON string or number into its textual form.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = flexString(num.String())
	return nil
}

// IndexFetcher reads the two-step index API: a version-info document, then
// the contents listing for that version.
type IndexFetcher struct {
	fetcherBase
}

// NewIndexFetcher creates a fetcher for FamilyIndex channels.
func NewIndexFetcher(opts ...FetcherOption) *IndexFetcher {
	return &IndexFetcher{fetcherBase: newFetcherBase(opts)}
}

// Fetch resolves the latest version and its artifact from the index.
func (f *IndexFetcher) Fetch(ctx context.Context, ch Channel) (*Descriptor, error) {
	var info indexVersionInfo
	if err := f.getJSON(ctx, ch.URL, &info); err != nil {
		return nil, fmt.Errorf("fetch %s version info: %w", ch.ID, err)
	}
	rawVersion := strings.TrimSpace(info.LatestVersion)
	if rawVersion == "" {
		return nil, fmt.Errorf("fetch %s version info: %w", ch.ID,
			apperrors.New(apperrors.CodeSchema, "missing latest_version", nil))
	}
	build := strings.TrimSpace(string(info.LatestBuild))

	var listing indexContents
	if err := f.getJSON(ctx, expandContentsURL(ch.ContentsURL, rawVersion, build), &listing); err != nil {
		return nil, fmt.Errorf("fetch %s contents: %w", ch.ID, err)
	}
	if listing.Contents == nil {
		return nil, fmt.Errorf("fetch %s contents: %w", ch.ID,
			apperrors.New(apperrors.CodeSchema, "missing contents", nil))
	}

	artifact, ok := f.findEntry(listing.Contents, func(name string) bool { return f.isArtifact(name) })
	if !ok {
		return nil, fmt.Errorf("fetch %s contents: %w", ch.ID,
			apperrors.New(apperrors.CodeAssetNotFound, fmt.Sprintf("no %s entry in contents", f.suffix), nil))
	}
	if strings.TrimSpace(artifact.Path) == "" {
		return nil, fmt.Errorf("fetch %s contents: %w", ch.ID,
			apperrors.New(apperrors.CodeSchema, fmt.Sprintf("entry %s has no path", artifact.Name), nil))
	}

	downloadURL, err := joinDownloadURL(ch.DownloadURL, artifact.Path)
	if err != nil {
		return nil, err
	}

	hash, err := f.siblingHash(ctx, ch, listing.Contents, artifact)
	if err != nil {
		return nil, fmt.Errorf("fetch %s checksum: %w", artifact.Name, err)
	}

	return NewDescriptor(DescriptorSpec{
		Channel:     ch.ID,
		Version:     indexVersion(rawVersion, build),
		DownloadURL: f.rewrite(ch, downloadURL),
		ContentHash: hash,
		Force:       info.ForceUpdate,
		AssetName:   artifact.Name,
		Notes:       info.Notes,
		FetchedAt:   f.now(),
	})
}

// siblingHash fetches "<artifact>.sha256" when listed. A listing that only
// offers "<artifact>.sha1" yields no hash without issuing a request.
func (f *IndexFetcher) siblingHash(ctx context.Context, ch Channel, entries []indexEntry, artifact indexEntry) (string, error) {
	want := strings.ToLower(artifact.Name + ChecksumSuffix)
	sibling, ok := f.findEntry(entries, func(name string) bool { return strings.ToLower(name) == want })
	if !ok {
		return "", nil
	}
	if strings.TrimSpace(sibling.Path) == "" {
		return "", apperrors.New(apperrors.CodeHashUnavailable,
			fmt.Sprintf("entry %s has no path", sibling.Name), nil)
	}
	u, err := joinDownloadURL(ch.DownloadURL, sibling.Path)
	if err != nil {
		return "", apperrors.New(apperrors.CodeHashUnavailable, "build checksum url", err)
	}
	return f.fetchChecksum(ctx, f.rewrite(ch, u), artifact.Name)
}

func (f *IndexFetcher) findEntry(entries []indexEntry, match func(string) bool) (indexEntry, bool) {
	for _, e := range entries {
		if match(e.Name) {
			return e, true
		}
	}
	return indexEntry{}, false
}

// expandContentsURL substitutes the {version} and {build} placeholders.
func expandContentsURL(tmpl, version, build string) string {
	return strings.NewReplacer(
		"{version}", url.PathEscape(version),
		"{build}", url.PathEscape(build),
	).Replace(tmpl)
}

func joinDownloadURL(base, path string) (string, error) {
	u, err := url.JoinPath(base, strings.Split(strings.TrimLeft(path, "/"), "/")...)
	if err != nil {
		return "", apperrors.New(apperrors.CodeSchema, fmt.Sprintf("invalid download path %q", path), err)
	}
	return u, nil
}

// indexVersion joins latest_version and latest_build with a dot unless the
// version already ends in that build.
func indexVersion(version, build string) string {
	version = NormalizeVersion(version)
	if build == "" || version == build || strings.HasSuffix(version, "."+build) {
		return version
	}
	return version + "." + build
}
