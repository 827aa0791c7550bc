package render

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// styles holds every style a Renderer uses. The zero value renders plain
// text.
type styles struct {
	label   lipgloss.Style
	badge   lipgloss.Style
	file    lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style
	muted   lipgloss.Style
	status  lipgloss.Style
	err     lipgloss.Style
	title   lipgloss.Style
	card    lipgloss.Style
}

func colorStyles(r *lipgloss.Renderer) styles {
	return styles{
		label: r.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Width(9),
		badge: r.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(highlightColor).
			Padding(0, 1),
		file: r.NewStyle().
			Bold(true),
		added: r.NewStyle().
			Foreground(successColor),
		removed: r.NewStyle().
			Foreground(errorColor),
		muted: r.NewStyle().
			Foreground(mutedColor),
		status: r.NewStyle().
			Foreground(warningColor).
			Italic(true),
		err: r.NewStyle().
			Bold(true).
			Foreground(errorColor),
		title: r.NewStyle().
			Bold(true).
			Foreground(primaryColor),
		card: r.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(mutedColor).
			PaddingLeft(1),
	}
}

func plainStyles() styles {
	s := lipgloss.NewStyle()
	return styles{
		label: s.Width(9), badge: s, file: s, added: s, removed: s,
		muted: s, status: s, err: s, title: s, card: s,
	}
}
