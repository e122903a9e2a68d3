// Package output prints CLI messages and tables.
package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/campus/internal/models"
)

// UI provides colored output and respects verbose mode.
type UI struct {
	Verbose bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
	magenta       = color.New(color.FgHiMagenta).SprintFunc()
)

func Cyan(s string) string   { return cyan(s) }
func Green(s string) string  { return green(s) }
func Yellow(s string) string { return yellow(s) }
func Red(s string) string    { return red(s) }

// StatusColor returns the status name colored the way the issue cards show it.
// An empty status reads Pending.
func StatusColor(status models.IssueStatus) string {
	if status == "" {
		status = models.IssueStatusPending
	}
	s := string(status)
	switch status {
	case models.IssueStatusPending:
		return yellow(s)
	case models.IssueStatusInProgress:
		return cyan(s)
	case models.IssueStatusResolved:
		return green(s)
	default:
		return s
	}
}

// RoleColor highlights admins.
func RoleColor(role models.Role) string {
	if role == models.RoleAdmin {
		return magenta(role.Title())
	}
	return role.Title()
}

// ActiveColor renders an account's active flag.
func ActiveColor(active bool) string {
	if active {
		return green("active")
	}
	return red("deactivated")
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

const titleWidth = 40

// IssueTable renders issues newest first, as given, with ages relative to now.
func (u *UI) IssueTable(issues []models.Issue, now time.Time) error {
	if len(issues) == 0 {
		u.Info("No issues found.")
		return nil
	}
	table := u.Table([]string{"ID", "Status", "Title", "Reporter", "Reported"})
	for _, issue := range issues {
		reporter := issue.ReporterEmail
		if reporter == "" {
			reporter = "Anonymous"
		}
		age := "-"
		if !issue.CreatedAt.IsZero() {
			age = humanize.RelTime(issue.CreatedAt, now, "ago", "from now")
		}
		if err := table.Append([]string{issue.ID, StatusColor(issue.Status), truncate(issue.Title, titleWidth), reporter, age}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(u.Out, "\n%s issues\n", humanize.Comma(int64(len(issues))))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
