package update

import (
	"fmt"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	apperrors "upcheck/internal/errors"
)

// Descriptor describes one discovered release. Descriptors are created by
// NewDescriptor after a fetch succeeded and must not be mutated afterwards.
type Descriptor struct {
	Channel     ChannelID `json:"channel" yaml:"channel" toml:"channel"`
	Version     string    `json:"version" yaml:"version" toml:"version"`
	DownloadURL string    `json:"download_url" yaml:"download_url" toml:"download_url"`
	// ContentHash is the lowercase hex SHA-256 of the artifact, nil when unknown.
	ContentHash *string   `json:"content_hash,omitempty" yaml:"content_hash,omitempty" toml:"content_hash,omitempty"`
	Force       bool      `json:"force" yaml:"force" toml:"force"`
	AssetName   string    `json:"asset_name,omitempty" yaml:"asset_name,omitempty" toml:"asset_name,omitempty"`
	Notes       string    `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
	FetchedAt   time.Time `json:"fetched_at" yaml:"fetched_at" toml:"fetched_at"`
}

// DescriptorSpec carries the raw values a fetcher extracted from a release.
type DescriptorSpec struct {
	Channel     ChannelID
	Version     string
	DownloadURL string
	ContentHash string // empty when the release carries no hash
	Force       bool
	AssetName   string
	Notes       string
	FetchedAt   time.Time
}

// NewDescriptor validates spec and builds an immutable Descriptor.
func NewDescriptor(spec DescriptorSpec) (*Descriptor, error) {
	version := strings.TrimSpace(spec.Version)
	if version == "" {
		return nil, apperrors.New(apperrors.CodeSchema, "release has an empty version", nil)
	}
	if strings.TrimSpace(spec.DownloadURL) == "" {
		return nil, apperrors.New(apperrors.CodeSchema, "release has an empty download url", nil)
	}

	var hash *string
	if spec.ContentHash != "" {
		h, err := ValidateContentHash(spec.ContentHash)
		if err != nil {
			return nil, err
		}
		hash = &h
	}

	return &Descriptor{
		Channel:     spec.Channel,
		Version:     version,
		DownloadURL: spec.DownloadURL,
		ContentHash: hash,
		Force:       spec.Force,
		AssetName:   spec.AssetName,
		Notes:       spec.Notes,
		FetchedAt:   spec.FetchedAt,
	}, nil
}

// Hash returns the content hash or "" when the descriptor carries none.
func (d *Descriptor) Hash() string {
	if d == nil || d.ContentHash == nil {
		return ""
	}
	return *d.ContentHash
}

// String implements fmt.Stringer for log lines.
func (d *Descriptor) String() string {
	if d == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s@%s (%s)", d.Version, d.Channel, d.DownloadURL)
}

// ValidateContentHash normalizes a hex SHA-256 string to lowercase and checks
// that it is exactly 64 hex characters.
func ValidateContentHash(s string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(s))
	if err := digest.SHA256.Validate(h); err != nil {
		return "", apperrors.New(apperrors.CodeHashUnavailable, fmt.Sprintf("invalid sha256 %q", s), err)
	}
	return h, nil
}

// hashFromDigest extracts the hex value of an "sha256:<hex>" digest.
// Digests using another algorithm yield "" with no error.
func hashFromDigest(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	d := digest.Digest(raw)
	i := strings.Index(raw, ":")
	if i <= 0 {
		return "", apperrors.New(apperrors.CodeHashUnavailable, fmt.Sprintf("malformed digest %q", raw), digest.ErrDigestInvalidFormat)
	}
	if !strings.EqualFold(string(d.Algorithm()), string(digest.SHA256)) {
		return "", nil
	}
	return ValidateContentHash(d.Encoded())
}
