package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/notify"
	"github.com/joescharf/campus/internal/view"
)

// palette is one theme's colours.
type palette struct {
	Primary    lipgloss.Color
	Subtle     lipgloss.Color
	Text       lipgloss.Color
	Highlight  lipgloss.Color
	Pending    lipgloss.Color
	InProgress lipgloss.Color
	Resolved   lipgloss.Color
	Error      lipgloss.Color
	Success    lipgloss.Color
	Info       lipgloss.Color
}

var (
	darkPalette = palette{
		Primary:    lipgloss.Color("#BD93F9"),
		Subtle:     lipgloss.Color("#6272A4"),
		Text:       lipgloss.Color("#F8F8F2"),
		Highlight:  lipgloss.Color("#44475A"),
		Pending:    lipgloss.Color("#FFB86C"),
		InProgress: lipgloss.Color("#8BE9FD"),
		Resolved:   lipgloss.Color("#50FA7B"),
		Error:      lipgloss.Color("#FF5555"),
		Success:    lipgloss.Color("#50FA7B"),
		Info:       lipgloss.Color("#8BE9FD"),
	}
	lightPalette = palette{
		Primary:    lipgloss.Color("#2563EB"),
		Subtle:     lipgloss.Color("#6B7280"),
		Text:       lipgloss.Color("#1F2933"),
		Highlight:  lipgloss.Color("#E5E7EB"),
		Pending:    lipgloss.Color("#D97706"),
		InProgress: lipgloss.Color("#2563EB"),
		Resolved:   lipgloss.Color("#059669"),
		Error:      lipgloss.Color("#DC2626"),
		Success:    lipgloss.Color("#059669"),
		Info:       lipgloss.Color("#2563EB"),
	}
)

// styles are the rendered styles for one theme.
type styles struct {
	p palette

	Title    lipgloss.Style
	Subtle   lipgloss.Style
	Panel    lipgloss.Style
	Focused  lipgloss.Style
	Selected lipgloss.Style
	Item     lipgloss.Style
	Help     lipgloss.Style
	Label    lipgloss.Style
}

func newStyles(theme string) styles {
	p := lightPalette
	if theme == "dark" {
		p = darkPalette
	}
	return styles{
		p:     p,
		Title: lipgloss.NewStyle().Foreground(p.Primary).Bold(true),
		Subtle: lipgloss.NewStyle().
			Foreground(p.Subtle),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Subtle).
			Padding(0, 1),
		Focused: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Primary).
			Padding(0, 1),
		Selected: lipgloss.NewStyle().
			Background(p.Highlight).
			Bold(true).
			PaddingLeft(1),
		Item:  lipgloss.NewStyle().PaddingLeft(1),
		Help:  lipgloss.NewStyle().Foreground(p.Subtle).Italic(true),
		Label: lipgloss.NewStyle().Foreground(p.Text).Width(13),
	}
}

func (s styles) status(st view.SystemStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch st.Phase {
	case view.PhaseReady:
		return base.Foreground(s.p.Success)
	case view.PhaseError:
		return base.Foreground(s.p.Error)
	default:
		return base.Foreground(s.p.Pending)
	}
}

func (s styles) notification(kind notify.Kind) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch kind {
	case notify.KindSuccess:
		return base.Foreground(s.p.Success)
	case notify.KindError:
		return base.Foreground(s.p.Error)
	case notify.KindWarning:
		return base.Foreground(s.p.Pending)
	default:
		return base.Foreground(s.p.Info)
	}
}

func (s styles) issueStatus(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Width(13).Bold(true)
	switch models.IssueStatus(status) {
	case models.IssueStatusInProgress:
		return base.Foreground(s.p.InProgress)
	case models.IssueStatusResolved:
		return base.Foreground(s.p.Resolved)
	default:
		return base.Foreground(s.p.Pending)
	}
}
