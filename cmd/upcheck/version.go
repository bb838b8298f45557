package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"upcheck/internal/update"
)

// Version information - injected at build time via ldflags
var (
	Version        = "0.0.0-SNAPSHOT"
	BuildCommit    = ""
	BuildChannel   = ""
	BuildTime      = ""
	ReleaseChannel = ""
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

// printVersion prints the version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "upcheck version %s", Version)

	if BuildCommit != "" {
		fmt.Fprintf(w, " (build: %s)", BuildCommit)
	}
	if BuildChannel != "" {
		fmt.Fprintf(w, " <%s>", BuildChannel)
	}
	if BuildTime != "" {
		fmt.Fprintf(w, " [%s]", BuildTime)
	}

	fmt.Fprintln(w)

	fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// Development builds fall back to the VCS stamp
	if update.IsDevelopmentVersion(Version) && BuildCommit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" && len(setting.Value) > 7 {
					fmt.Fprintf(w, "Commit: %s\n", setting.Value[:7])
					break
				}
			}
		}
	}
}

// runningBuild describes the executing binary to the checker. Builds without
// an embedded release channel are assumed to come from the active one.
func runningBuild(active update.ChannelID) update.Running {
	channel := update.ChannelID(ReleaseChannel)
	if channel == "" {
		channel = active
	}
	return update.Running{Version: Version, Channel: channel}
}
