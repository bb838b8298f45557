package update

import (
	"fmt"
	"sort"
	"strings"
)

// ChannelID names a distribution channel ("github", "gitee", "index", ...).
type ChannelID string

// Family selects the wire schema a channel speaks.
type Family string

const (
	// FamilyGitHub is a release API carrying sha256 digests on its assets.
	FamilyGitHub Family = "github"
	// FamilyMirror is a release API of the same shape whose checksums live in
	// a detached "<asset>.sha256" file.
	FamilyMirror Family = "mirror"
	// FamilyIndex is the two-step version-info plus contents-listing API.
	FamilyIndex Family = "index"
)

// Default channel identifiers and endpoints.
const (
	ChannelGitHub ChannelID = "github"
	ChannelGitee  ChannelID = "gitee"
	ChannelIndex  ChannelID = "index"

	DefaultGitHubURL      = "https://api.github.com/repos/ClearCraft/ClearCraftLauncher/releases/latest"
	DefaultGiteeURL       = "https://gitee.com/api/v5/repos/xsp090424/ClearCraftLauncher/releases/latest"
	DefaultIndexURL       = "https://api.clearcraft.cn/CCL/last"
	DefaultIndexContents  = "https://api.clearcraft.cn/CCL/{version}/contents"
	DefaultIndexDownload  = "https://api.clearcraft.cn/CCL/download"
	DefaultGitHubRewrite  = "https://github.com"
	DefaultArtifactSuffix = ".jar"
)

// Channel binds an identifier to the endpoint and schema a fetcher must use.
type Channel struct {
	ID     ChannelID `json:"id" yaml:"id" toml:"id"`
	Family Family    `json:"family" yaml:"family" toml:"family"`
	URL    string    `json:"url" yaml:"url" toml:"url"`

	// Index family only.
	ContentsURL string `json:"contents_url,omitempty" yaml:"contents_url,omitempty" toml:"contents_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty" yaml:"download_url,omitempty" toml:"download_url,omitempty"`

	// Rewrite enables replacing RewritePrefix on resolved download URLs with
	// the configured mirror prefix.
	Rewrite       bool   `json:"rewrite,omitempty" yaml:"rewrite,omitempty" toml:"rewrite,omitempty"`
	RewritePrefix string `json:"rewrite_prefix,omitempty" yaml:"rewrite_prefix,omitempty" toml:"rewrite_prefix,omitempty"`
}

// Validate reports configuration mistakes in a channel entry.
func (c Channel) Validate() error {
	if strings.TrimSpace(string(c.ID)) == "" {
		return fmt.Errorf("channel id is empty")
	}
	switch c.Family {
	case FamilyGitHub, FamilyMirror:
	case FamilyIndex:
		if c.ContentsURL == "" {
			return fmt.Errorf("channel %s: index family requires contents_url", c.ID)
		}
		if c.DownloadURL == "" {
			return fmt.Errorf("channel %s: index family requires download_url", c.ID)
		}
	default:
		return fmt.Errorf("channel %s: unknown family %q", c.ID, c.Family)
	}
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("channel %s: url is empty", c.ID)
	}
	if c.Rewrite && c.RewritePrefix == "" {
		return fmt.Errorf("channel %s: rewrite requires rewrite_prefix", c.ID)
	}
	return nil
}

// DefaultChannels returns the built-in channel table.
func DefaultChannels() []Channel {
	return []Channel{
		{
			ID:            ChannelGitHub,
			Family:        FamilyGitHub,
			URL:           DefaultGitHubURL,
			Rewrite:       true,
			RewritePrefix: DefaultGitHubRewrite,
		},
		{
			ID:     ChannelGitee,
			Family: FamilyMirror,
			URL:    DefaultGiteeURL,
		},
		{
			ID:          ChannelIndex,
			Family:      FamilyIndex,
			URL:         DefaultIndexURL,
			ContentsURL: DefaultIndexContents,
			DownloadURL: DefaultIndexDownload,
		},
	}
}

// Registry enumerates the known channels and resolves the active one.
type Registry struct {
	channels map[ChannelID]Channel
	active   ChannelID
}

// NewRegistry builds a registry from channels. The active id must be one of them.
func NewRegistry(active ChannelID, channels ...Channel) (*Registry, error) {
	r := &Registry{channels: make(map[ChannelID]Channel, len(channels))}
	for _, ch := range channels {
		if err := ch.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.channels[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate channel %s", ch.ID)
		}
		r.channels[ch.ID] = ch
	}
	if _, ok := r.channels[active]; !ok {
		return nil, fmt.Errorf("active channel %q is not registered", active)
	}
	r.active = active
	return r, nil
}

// Lookup returns the channel registered under id.
func (r *Registry) Lookup(id ChannelID) (Channel, bool) {
	ch, ok := r.channels[id]
	return ch, ok
}

// Active returns the configured channel.
func (r *Registry) Active() Channel {
	return r.channels[r.active]
}

// All returns every channel sorted by id.
func (r *Registry) All() []Channel {
	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
