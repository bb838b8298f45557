package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"upcheck/internal/config"
	"upcheck/internal/update"
)

// channelRow is one channel as printed by "channels".
type channelRow struct {
	update.Channel `yaml:",inline"`
	Active         bool `json:"active" yaml:"active" toml:"active"`
}

// channelList wraps the rows so TOML output has a top-level table.
type channelList struct {
	Channels []channelRow `json:"channels" yaml:"channels" toml:"channels"`
}

func (l channelList) String() string {
	var b strings.Builder
	for i, row := range l.Channels {
		if i > 0 {
			b.WriteString("\n")
		}
		marker := "  "
		name := string(row.ID)
		if row.Active {
			marker = "* "
			name = titleStyle.Render(name)
		}
		b.WriteString(marker)
		b.WriteString(name)
		b.WriteString(" ")
		b.WriteString(hintStyle.Render(fmt.Sprintf("(%s)", row.Family)))
		b.WriteString("\n    ")
		b.WriteString(row.URL)
		if row.Rewrite && row.RewritePrefix != "" {
			b.WriteString("\n    ")
			b.WriteString(hintStyle.Render("mirror rewrites " + row.RewritePrefix))
		}
	}
	return b.String()
}

func newChannelsCmd() *cobra.Command {
	var use string
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List release channels",
		Long: `List the built-in and configured release channels. With --use the given
channel becomes the active one and is saved to the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if use != "" {
				id := update.ChannelID(strings.ToLower(strings.TrimSpace(use)))
				reg, err := config.Registry()
				if err != nil {
					return err
				}
				if _, ok := reg.Lookup(id); !ok {
					return fmt.Errorf("unknown channel %q", id)
				}
				if err := config.SaveChannel(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Active channel set to %s\n", id)
			}
			list, err := listChannels()
			if err != nil {
				return err
			}
			return outputWriter(cmd.OutOrStdout()).Write(list)
		},
	}
	cmd.Flags().StringVar(&use, "use", "", "Make this channel the active one and save it")
	return cmd
}

func listChannels() (channelList, error) {
	reg, err := config.Registry()
	if err != nil {
		return channelList{}, err
	}
	active := reg.Active().ID
	var list channelList
	for _, ch := range reg.All() {
		list.Channels = append(list.Channels, channelRow{Channel: ch, Active: ch.ID == active})
	}
	return list, nil
}
