package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"

	apperrors "upcheck/internal/errors"
	"upcheck/internal/update"
)

const defaultWrapWidth = 80

var (
	primaryColor = lipgloss.Color("#7D56F4")
	accentColor  = lipgloss.Color("#FF79C6")
	dimColor     = lipgloss.Color("#6272A4")
	successColor = lipgloss.Color("#50FA7B")
	warnColor    = lipgloss.Color("#F1FA8C")
	errorColor   = lipgloss.Color("#FF5555")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Width(10)

	valueStyle = lipgloss.NewStyle()

	okStyle = lipgloss.NewStyle().
		Foreground(successColor).
		Bold(true)

	outdatedStyle = lipgloss.NewStyle().
			Foreground(warnColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	hintStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true)
)

// statusReport is the printable result of a check.
type statusReport struct {
	Channel     update.ChannelID   `json:"channel" yaml:"channel" toml:"channel"`
	Running     string             `json:"running" yaml:"running" toml:"running"`
	Latest      *update.Descriptor `json:"latest,omitempty" yaml:"latest,omitempty" toml:"latest,omitempty"`
	Outdated    bool               `json:"outdated" yaml:"outdated" toml:"outdated"`
	CheckedAt   time.Time          `json:"checked_at" yaml:"checked_at" toml:"checked_at"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	ErrorCode   string             `json:"error_code,omitempty" yaml:"error_code,omitempty" toml:"error_code,omitempty"`
	Development bool               `json:"development" yaml:"development" toml:"development"`
}

func newStatusReport(s update.State, running update.Running) statusReport {
	r := statusReport{
		Channel:     s.Channel,
		Running:     running.Version,
		Latest:      s.Latest,
		Outdated:    s.Outdated,
		CheckedAt:   s.LastCheckedAt,
		Development: update.IsDevelopmentVersion(running.Version),
	}
	if s.LastError != nil {
		r.Error = s.LastError.Error()
		r.ErrorCode = string(apperrors.CodeOf(s.LastError))
	}
	return r
}

// renderStatus formats a report for humans.
func renderStatus(r statusReport, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("upcheck"))
	b.WriteString(" ")
	b.WriteString(statusBadge(r))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	row("Channel", string(r.Channel))
	running := r.Running
	if r.Development {
		running += " (development build)"
	}
	row("Running", running)
	if r.Latest != nil {
		row("Latest", r.Latest.Version)
		row("Download", truncateURL(r.Latest.DownloadURL, width))
		if h := r.Latest.Hash(); h != "" {
			row("SHA-256", h)
		} else {
			row("SHA-256", hintStyle.Render("not published"))
		}
		if r.Latest.Force {
			row("Force", "yes")
		}
	}
	if !r.CheckedAt.IsZero() {
		row("Checked", humanize.Time(r.CheckedAt))
	}
	if r.Error != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(wordwrap.String(r.Error, wrapWidth(width))))
		b.WriteString("\n")
	}
	return b.String()
}

func statusBadge(r statusReport) string {
	switch {
	case r.Error != "" && r.Latest == nil:
		return errorStyle.Render("check failed")
	case r.Latest == nil:
		return hintStyle.Render("no release known")
	case r.Outdated:
		return outdatedStyle.Render(fmt.Sprintf("update available: %s", r.Latest.Version))
	default:
		return okStyle.Render("up to date")
	}
}

func truncateURL(url string, width int) string {
	limit := wrapWidth(width) - lipgloss.Width(labelStyle.Render(""))
	if limit <= 0 {
		return url
	}
	return ansi.Truncate(url, limit, "…")
}

func wrapWidth(width int) int {
	if width <= 0 {
		return defaultWrapWidth
	}
	return width
}

// buildMarkdownRenderer renders release notes, falling back to plain word
// wrapping when color is off or glamour fails.
func buildMarkdownRenderer(style string, width int) func(string) string {
	width = wrapWidth(width)
	fallback := func(input string) string {
		return wordwrap.String(input, width)
	}

	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		style = "dark"
	}
	if style == "plain" {
		return fallback
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}

func notesStyle() string {
	if colorEnabled() {
		return "dark"
	}
	return "plain"
}
