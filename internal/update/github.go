package update

import (
	"context"
	"fmt"
)

// GitHubFetcher reads the primary release API, where each asset may carry a
// "sha256:<hex>" digest.
type GitHubFetcher struct {
	fetcherBase
}

// NewGitHubFetcher creates a fetcher for FamilyGitHub channels.
func NewGitHubFetcher(opts ...FetcherOption) *GitHubFetcher {
	return &GitHubFetcher{fetcherBase: newFetcherBase(opts)}
}

// Fetch performs a single request for the latest release of ch.
func (f *GitHubFetcher) Fetch(ctx context.Context, ch Channel) (*Descriptor, error) {
	release, asset, err := f.fetchRelease(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("fetch %s release: %w", ch.ID, err)
	}

	hash, err := hashFromDigest(asset.Digest)
	if err != nil {
		return nil, fmt.Errorf("read %s digest: %w", asset.Name, err)
	}

	return NewDescriptor(DescriptorSpec{
		Channel:     ch.ID,
		Version:     NormalizeVersion(release.TagName),
		DownloadURL: f.rewrite(ch, asset.BrowserDownloadURL),
		ContentHash: hash,
		AssetName:   asset.Name,
		Notes:       release.Body,
		FetchedAt:   f.now(),
	})
}
