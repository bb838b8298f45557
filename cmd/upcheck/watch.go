package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"upcheck/internal/config"
	"upcheck/internal/debug"
	"upcheck/internal/update"
)

var containerStyle = lipgloss.NewStyle().Padding(1, 2)

func newWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep checking the active channel in an interactive view",
		Long: `Run scheduled checks of the active channel and show the latest state.
Press r to check now, c to switch to the next channel and q to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = config.GetDuration(config.KeyUpdateCheckInterval)
			}
			return runWatch(cmd, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", update.DefaultCheckInterval, "Time between scheduled checks")
	return cmd
}

func runWatch(cmd *cobra.Command, interval time.Duration) error {
	ctx, cancel := context.WithCancel(contextOf(cmd))
	defer cancel()

	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	sched := update.NewScheduler(a.checker, interval, update.WithSchedulerLogger(debug.Logger()))
	schedErr := make(chan error, 1)
	go func() {
		schedErr <- sched.Run(ctx)
	}()

	model := newWatchModel(a.checker, interval)
	defer model.unsubscribe()

	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, runErr := p.Run()
	cancel()

	if err := <-schedErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}

// watchModel is the bubbletea model for the watch screen.
type watchModel struct {
	checker  *update.Checker
	interval time.Duration
	spinner  spinner.Model

	state       update.State
	updates     <-chan update.State
	unsubscribe func()
	channels    []update.ChannelID

	width    int
	quitting bool
}

type stateMsg update.State
type subscriptionClosedMsg struct{}
type clockMsg time.Time

func newWatchModel(c *update.Checker, interval time.Duration) *watchModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = spinnerStyle

	updates, unsubscribe := c.Subscribe()

	var ids []update.ChannelID
	for _, ch := range c.Registry().All() {
		ids = append(ids, ch.ID)
	}

	return &watchModel{
		checker:     c,
		interval:    interval,
		spinner:     s,
		state:       c.Snapshot(),
		updates:     updates,
		unsubscribe: unsubscribe,
		channels:    ids,
	}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForState(), tickClock())
}

// waitForState delivers the next published snapshot as a message.
func (m *watchModel) waitForState() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.updates
		if !ok {
			return subscriptionClosedMsg{}
		}
		return stateMsg(s)
	}
}

// tickClock refreshes relative timestamps.
func tickClock() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.checker.RequestCheck(m.currentChannel())
			return m, nil
		case "c":
			m.checker.RequestCheck(m.nextChannel())
			return m, nil
		}
		return m, nil

	case stateMsg:
		m.state = update.State(msg)
		return m, m.waitForState()

	case subscriptionClosedMsg:
		return m, nil

	case clockMsg:
		return m, tickClock()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *watchModel) currentChannel() update.ChannelID {
	if m.state.Channel != "" {
		return m.state.Channel
	}
	return m.checker.Registry().Active().ID
}

func (m *watchModel) nextChannel() update.ChannelID {
	cur := m.currentChannel()
	for i, id := range m.channels {
		if id == cur {
			return m.channels[(i+1)%len(m.channels)]
		}
	}
	if len(m.channels) == 0 {
		return cur
	}
	return m.channels[0]
}

func (m *watchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	report := newStatusReport(m.state, m.checker.Running())
	b.WriteString(renderStatus(report, m.width-4))
	b.WriteString("\n")

	if m.state.Checking {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(checkingMessage(string(m.currentChannel()), ""))
	} else if m.state.LastError != nil {
		b.WriteString(hintStyle.Render("Retrying with backoff"))
	} else if !m.state.LastCheckedAt.IsZero() {
		next := m.state.LastCheckedAt.Add(m.interval)
		b.WriteString(hintStyle.Render(fmt.Sprintf("Next scheduled check %s", humanize.Time(next))))
	}
	b.WriteString("\n\n")
	b.WriteString(hintStyle.Render("r check now • c next channel • q quit"))

	return containerStyle.Render(b.String())
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
