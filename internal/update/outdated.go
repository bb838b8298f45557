package update

// Running identifies the build that is currently executing.
type Running struct {
	Version string    `json:"version" yaml:"version" toml:"version"`
	Channel ChannelID `json:"channel" yaml:"channel" toml:"channel"`
}

// Outdated reports whether latest should replace the running build.
//
// Development builds are never outdated. A forced release, or one discovered
// on a channel other than the running build's, counts as newer whenever its
// version string differs. Otherwise versions are compared by CompareVersions.
func Outdated(latest *Descriptor, running Running) bool {
	if latest == nil || IsDevelopmentVersion(running.Version) {
		return false
	}
	if latest.Force || latest.Channel != running.Channel {
		return latest.Version != running.Version
	}
	cmp, err := CompareVersions(running.Version, latest.Version)
	if err != nil {
		// Unparseable on either side: any difference is an update.
		return NormalizeVersion(latest.Version) != NormalizeVersion(running.Version)
	}
	return cmp < 0
}
