package update

import (
	"context"
	"fmt"
	"io"
	"os"

	apperrors "upcheck/internal/errors"
)

// ChecksumSuffix names the detached checksum published next to an artifact.
const ChecksumSuffix = ".sha256"

// MirrorFetcher reads a release API of the GitHub shape whose assets carry no
// digest. The hash is read from a sibling "<asset>.sha256" download.
type MirrorFetcher struct {
	fetcherBase
}

// NewMirrorFetcher creates a fetcher for FamilyMirror channels.
func NewMirrorFetcher(opts ...FetcherOption) *MirrorFetcher {
	return &MirrorFetcher{fetcherBase: newFetcherBase(opts)}
}

// Fetch requests the release object, then its detached checksum.
func (f *MirrorFetcher) Fetch(ctx context.Context, ch Channel) (*Descriptor, error) {
	release, asset, err := f.fetchRelease(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("fetch %s release: %w", ch.ID, err)
	}

	hash, err := f.fetchChecksum(ctx, asset.BrowserDownloadURL+ChecksumSuffix, asset.Name)
	if err != nil {
		return nil, fmt.Errorf("fetch %s checksum: %w", asset.Name, err)
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

// fetchChecksum downloads a checksum file into a temporary file and parses it.
// The temporary file is removed whether or not parsing succeeds.
func (b *fetcherBase) fetchChecksum(ctx context.Context, url, assetName string) (string, error) {
	resp, err := b.get(ctx, url, "text/plain")
	if err != nil {
		return "", apperrors.New(apperrors.CodeHashUnavailable, "checksum request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	tmp, err := os.CreateTemp(b.tempDir, "upcheck-*"+ChecksumSuffix)
	if err != nil {
		return "", apperrors.New(apperrors.CodeHashUnavailable, "stage checksum", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxChecksumSize)); err != nil {
		return "", apperrors.New(apperrors.CodeHashUnavailable, "read checksum", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", apperrors.New(apperrors.CodeHashUnavailable, "rewind checksum", err)
	}
	content, err := io.ReadAll(tmp)
	if err != nil {
		return "", apperrors.New(apperrors.CodeHashUnavailable, "read checksum", err)
	}

	return parseChecksum(string(content), assetName)
}
