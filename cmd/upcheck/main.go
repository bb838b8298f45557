package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"upcheck/internal/config"
	"upcheck/internal/debug"
	"upcheck/internal/output"
)

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	err := root.Execute()
	// PersistentPostRun is skipped when a command fails.
	debug.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	channel   string
	mirrorURL string
	output    string
	logLevel  string
	debug     bool
	noColor   bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "upcheck",
		Short: "Check release channels for newer builds",
		Long: `upcheck discovers the latest release on a distribution channel, reports
whether the running build is outdated, and verifies the running binary's signature.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd, flags, stdout)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			debug.Close()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.channel, "channel", "c", "", "Release channel to use (overrides update.channel)")
	pf.StringVar(&flags.mirrorURL, "mirror-url", "", "Prefix replacing the upstream host in download URLs")
	pf.StringVarP(&flags.output, "output", "o", "", "Output format: text, json, yaml, toml")
	pf.StringVar(&flags.logLevel, "log-level", "", "Debug log level (trace, debug, info, warn, error)")
	pf.BoolVar(&flags.debug, "debug", false, "Write a debug log to ~/.upcheck/debug.log")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml", "toml"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newChannelsCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// setup loads configuration, applies explicitly set flags on top of it and
// prepares logging and color output.
func setup(cmd *cobra.Command, flags *globalFlags, stdout io.Writer) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}

	overrides := map[string]any{}
	changed := cmd.Flags().Changed
	if changed("channel") {
		overrides[config.KeyUpdateChannel] = strings.ToLower(strings.TrimSpace(flags.channel))
	}
	if changed("mirror-url") {
		overrides[config.KeyUpdateMirrorURL] = flags.mirrorURL
	}
	if changed("output") {
		overrides[config.KeyOutputFormat] = flags.output
	}
	if changed("log-level") {
		overrides[config.KeyLogLevel] = flags.logLevel
	}
	if changed("debug") {
		overrides[config.KeyDebug] = flags.debug
	}
	if changed("no-color") {
		overrides[config.KeyNoColor] = flags.noColor
	}
	if err := config.ApplyOverrides(overrides); err != nil {
		return fmt.Errorf("apply flags: %w", err)
	}

	if _, err := output.ParseFormat(config.GetString(config.KeyOutputFormat)); err != nil {
		return err
	}

	if config.GetBool(config.KeyDebug) {
		if err := debug.Init(true); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: debug log unavailable: %v\n", err)
		}
		if err := debug.SetLevel(config.GetString(config.KeyLogLevel)); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}

	if config.GetBool(config.KeyNoColor) || !isTerminal(stdout) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w when it is a terminal, otherwise 0.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

func colorEnabled() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

func outputWriter(w io.Writer) *output.Writer {
	format, err := output.ParseFormat(config.GetString(config.KeyOutputFormat))
	if err != nil {
		format = output.FormatText
	}
	return output.NewWriter(w, format)
}
