package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	apperrors "upcheck/internal/errors"
	"upcheck/internal/update"
)

const spinnerDelay = 300 * time.Millisecond

type checkOptions struct {
	notes   bool
	copyURL bool
	wait    time.Duration
}

func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check [channel]",
		Short: "Check a channel for a newer release",
		Long: `Fetch the latest release of a channel and report whether the running
build is outdated. Without an argument the configured channel is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var channel update.ChannelID
			if len(args) == 1 {
				channel = update.ChannelID(strings.ToLower(strings.TrimSpace(args[0])))
			}
			return runCheck(cmd, channel, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.notes, "notes", false, "Render the release notes of the latest release")
	cmd.Flags().BoolVar(&opts.copyURL, "copy-url", false, "Copy the download URL to the clipboard")
	cmd.Flags().DurationVar(&opts.wait, "wait", time.Minute, "Give up waiting for the check after this long")
	return cmd
}

func runCheck(cmd *cobra.Command, channel update.ChannelID, opts *checkOptions) error {
	ctx := contextOf(cmd)

	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if channel == "" {
		channel = a.checker.Registry().Active().ID
	}

	out := outputWriter(cmd.OutOrStdout())

	var sp *checkSpinner
	if !out.Structured() && isTerminal(cmd.ErrOrStderr()) {
		sp = newCheckSpinner(cmd.ErrOrStderr(), spinnerDelay)
		sp.Status(spinnerStyle.Render(checkingMessage(string(channel), "")))
	}

	if opts.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.wait)
		defer cancel()
	}

	a.checker.RequestCheck(channel)
	state, err := a.checker.WaitIdle(ctx)
	sp.Stop()
	if err != nil {
		return fmt.Errorf("waiting for check: %w", err)
	}

	report := newStatusReport(state, a.checker.Running())
	if out.Structured() {
		if err := out.Write(report); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), renderStatus(report, terminalWidth(cmd.OutOrStdout())))
		if opts.notes && state.Latest != nil && strings.TrimSpace(state.Latest.Notes) != "" {
			render := buildMarkdownRenderer(notesStyle(), terminalWidth(cmd.OutOrStdout()))
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", render(state.Latest.Notes))
		}
	}

	if opts.copyURL && state.Latest != nil {
		if err := clipboard.WriteAll(state.Latest.DownloadURL); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not copy download URL: %v\n", err)
		} else if !out.Structured() {
			fmt.Fprintln(cmd.ErrOrStderr(), hintStyle.Render("Download URL copied to clipboard."))
		}
	}

	if state.LastError != nil {
		return checkError(state.LastError)
	}
	return nil
}

// checkError prefixes a failed check with its error category.
func checkError(err error) error {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		return err
	}
	return fmt.Errorf("%s: %w", code, err)
}
