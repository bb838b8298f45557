// Package update discovers newer releases of the running build.
//
// This package handles:
//   - Describing the known distribution channels (Registry)
//   - Fetching the latest release of a channel from one of three API
//     families (GitHubFetcher, MirrorFetcher, IndexFetcher)
//   - Ordering version strings and deciding whether a release is newer
//   - Running checks in the background and publishing State snapshots
//
// Installing a release is left to the host. The checker only reports what it
// found, including the artifact's SHA-256 when the channel publishes one.
//
// Example usage:
//
//	reg, _ := update.NewRegistry(update.ChannelGitHub, update.DefaultChannels()...)
//	checker := update.NewChecker(reg, update.DefaultFetchers(), update.Running{
//	    Version: version,
//	    Channel: update.ChannelGitHub,
//	})
//	checker.RequestActiveCheck()
//	state, _ := checker.WaitIdle(ctx)
//	if state.Outdated {
//	    // offer state.Latest.DownloadURL
//	}
package update
