package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "upcheck/internal/errors"
)

// Default fetch configuration values.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultUserAgent      = "upcheck-update-checker"

	maxMetadataSize = 4 << 20
	maxChecksumSize = 64 << 10
)

// Fetcher talks to one family of release APIs and produces a Descriptor for a channel.
// Every failure is returned as an apperrors.Error carrying one of the fetch codes.
type Fetcher interface {
	Fetch(ctx context.Context, ch Channel) (*Descriptor, error)
}

// FetcherOption configures a fetcher.
type FetcherOption func(*fetcherBase)

// WithHTTPClient sets a custom HTTP client for the fetcher. The fetcher uses a
// copy carrying its own per-request timeout; client is never modified.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(b *fetcherBase) {
		if client != nil {
			b.client = client
		}
	}
}

// WithTimeout sets the per-request timeout. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(b *fetcherBase) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

// WithArtifactSuffix sets the file extension that identifies the release artifact.
func WithArtifactSuffix(suffix string) FetcherOption {
	return func(b *fetcherBase) {
		if suffix != "" {
			b.suffix = suffix
		}
	}
}

// WithMirror sets the prefix that replaces a rewriting channel's upstream prefix.
func WithMirror(prefix string) FetcherOption {
	return func(b *fetcherBase) {
		b.mirror = strings.TrimSpace(prefix)
	}
}

// WithTempDir sets where detached checksum files are staged.
func WithTempDir(dir string) FetcherOption {
	return func(b *fetcherBase) {
		b.tempDir = dir
	}
}

// WithClock overrides the clock used for Descriptor.FetchedAt.
func WithClock(now func() time.Time) FetcherOption {
	return func(b *fetcherBase) {
		b.now = now
	}
}

// fetcherBase holds the HTTP plumbing shared by every family.
type fetcherBase struct {
	client    *http.Client
	timeout   time.Duration
	suffix    string
	mirror    string
	userAgent string
	tempDir   string
	now       func() time.Time
}

func newFetcherBase(opts []FetcherOption) fetcherBase {
	b := fetcherBase{
		client:    http.DefaultClient,
		timeout:   DefaultRequestTimeout,
		suffix:    DefaultArtifactSuffix,
		userAgent: DefaultUserAgent,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	client := *b.client
	client.Timeout = b.timeout
	b.client = &client
	return b
}

// get performs one GET request. The caller closes the body of a non-nil response.
func (b *fetcherBase) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeTransport, "create request", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", b.userAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeTransport, fmt.Sprintf("GET %s", url), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		msg := fmt.Sprintf("GET %s: status %d", url, resp.StatusCode)
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			msg += " (rate limited)"
		}
		return nil, apperrors.New(apperrors.CodeProtocol, msg, nil)
	}
	return resp, nil
}

// getJSON fetches url and decodes the JSON body into v.
func (b *fetcherBase) getJSON(ctx context.Context, url string, v any) error {
	resp, err := b.get(ctx, url, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataSize)).Decode(v); err != nil {
		return apperrors.New(apperrors.CodeSchema, fmt.Sprintf("decode %s", url), err)
	}
	return nil
}

// rewrite swaps the channel's upstream prefix for the mirror prefix when the
// channel asks for it and a mirror is configured.
func (b *fetcherBase) rewrite(ch Channel, url string) string {
	if !ch.Rewrite || b.mirror == "" || ch.RewritePrefix == "" {
		return url
	}
	prefix := strings.TrimRight(ch.RewritePrefix, "/")
	rest, ok := strings.CutPrefix(url, prefix)
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return url
	}
	return strings.TrimRight(b.mirror, "/") + rest
}

// isArtifact matches the artifact suffix case-sensitively, so "CCL.JAR" is not a ".jar".
func (b *fetcherBase) isArtifact(name string) bool {
	return strings.HasSuffix(name, b.suffix)
}

// ReleaseAsset represents a downloadable file attached to a release.
type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Digest             string `json:"digest,omitempty"`
}

// ReleaseInfo is the subset of a release API response the fetchers consume.
type ReleaseInfo struct {
	TagName string         `json:"tag_name"`
	Body    string         `json:"body"`
	Assets  []ReleaseAsset `json:"assets"`
}

func (r *ReleaseInfo) validate() error {
	if strings.TrimSpace(r.TagName) == "" {
		return apperrors.New(apperrors.CodeSchema, "release is missing tag_name", nil)
	}
	if r.Assets == nil {
		return apperrors.New(apperrors.CodeSchema, "release is missing assets", nil)
	}
	return nil
}

// findArtifact returns the first asset whose name ends in the artifact suffix.
func (b *fetcherBase) findArtifact(assets []ReleaseAsset) (ReleaseAsset, error) {
	for _, asset := range assets {
		if !b.isArtifact(asset.Name) {
			continue
		}
		if strings.TrimSpace(asset.BrowserDownloadURL) == "" {
			return ReleaseAsset{}, apperrors.New(apperrors.CodeSchema,
				fmt.Sprintf("asset %s has no browser_download_url", asset.Name), nil)
		}
		return asset, nil
	}
	return ReleaseAsset{}, apperrors.New(apperrors.CodeAssetNotFound,
		fmt.Sprintf("no %s asset in release", b.suffix), nil)
}

// fetchRelease loads and validates a release object from a release API.
func (b *fetcherBase) fetchRelease(ctx context.Context, ch Channel) (*ReleaseInfo, ReleaseAsset, error) {
	var release ReleaseInfo
	if err := b.getJSON(ctx, ch.URL, &release); err != nil {
		return nil, ReleaseAsset{}, err
	}
	if err := release.validate(); err != nil {
		return nil, ReleaseAsset{}, err
	}
	asset, err := b.findArtifact(release.Assets)
	if err != nil {
		return nil, ReleaseAsset{}, err
	}
	return &release, asset, nil
}
