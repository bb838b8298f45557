package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"upcheck/internal/config"
	"upcheck/internal/history"
)

// historyList wraps entries so TOML output has a top-level table.
type historyList struct {
	Checks []history.Entry `json:"checks" yaml:"checks" toml:"checks"`
	width  int
}

func (l historyList) String() string {
	if len(l.Checks) == 0 {
		return hintStyle.Render("No checks recorded yet.")
	}
	var b strings.Builder
	for i, e := range l.Checks {
		if i > 0 {
			b.WriteString("\n")
		}
		when := humanize.Time(e.FinishedAt)
		b.WriteString(fmt.Sprintf("%-16s %-8s ", when, e.Channel))
		switch {
		case e.Failed():
			b.WriteString(errorStyle.Render("failed"))
			if e.ErrorCode != "" {
				b.WriteString(hintStyle.Render(" [" + e.ErrorCode + "]"))
			}
			if e.Error != "" {
				b.WriteString("\n")
				b.WriteString(indent(wordwrap.String(e.Error, wrapWidth(l.width)-4), 4))
			}
		case e.Outdated:
			b.WriteString(outdatedStyle.Render(fmt.Sprintf("%s -> %s", e.RunningVersion, e.LatestVersion)))
		default:
			b.WriteString(okStyle.Render(e.LatestVersion))
		}
	}
	return b.String()
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = pad + line
	}
	return strings.Join(lines, "\n")
}

func newHistoryCmd() *cobra.Command {
	var limit, prune int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent update checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOf(cmd)
			path, err := config.HistoryPath()
			if err != nil {
				return err
			}
			store, err := history.Open(ctx, path)
			if err != nil {
				return err
			}
			defer store.Close()

			if cmd.Flags().Changed("prune") {
				removed, err := store.Prune(ctx, prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d %s\n", removed, plural(removed, "check", "checks"))
			}

			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			return outputWriter(cmd.OutOrStdout()).Write(historyList{
				Checks: entries,
				width:  terminalWidth(cmd.OutOrStdout()),
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of checks to show")
	cmd.Flags().IntVar(&prune, "prune", 0, "Delete all but the newest N checks")
	return cmd
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
