// Package styles provides consistent terminal styling for the kestrel CLI.
package styles

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Primary      = lipgloss.Color("#D97706") // Amber
	PrimaryLight = lipgloss.Color("#FBBF24")
	Secondary    = lipgloss.Color("#06B6D4") // Cyan

	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Info    = lipgloss.Color("#3B82F6")

	Text      = lipgloss.Color("#F9FAFB")
	TextMuted = lipgloss.Color("#9CA3AF")
	Surface   = lipgloss.Color("#1F2937")
	Border    = lipgloss.Color("#374151")
)

// Text styles
var (
	Bold      lipgloss.Style
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Normal    lipgloss.Style
	Muted     lipgloss.Style
	Highlight lipgloss.Style
	Code      lipgloss.Style

	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	InfoStyle    lipgloss.Style

	Box     lipgloss.Style
	InfoBox lipgloss.Style
)

func init() {
	build()
}

// build derives every style from the current palette.
func build() {
	Bold = lipgloss.NewStyle().Bold(true)
	Title = lipgloss.NewStyle().Bold(true).Foreground(Primary).MarginBottom(1)
	Subtitle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryLight)
	Normal = lipgloss.NewStyle().Foreground(Text)
	Muted = lipgloss.NewStyle().Foreground(TextMuted)
	Highlight = lipgloss.NewStyle().Bold(true).Foreground(Secondary)
	Code = lipgloss.NewStyle().Foreground(PrimaryLight).Background(Surface).Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle = lipgloss.NewStyle().Foreground(Error)
	InfoStyle = lipgloss.NewStyle().Foreground(Info)

	Box = newRoundedBox(Border)
	InfoBox = newRoundedBox(Info).MarginTop(1)
}

func newRoundedBox(borderColor lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(1, 2)
}

// Icons
const (
	IconSuccess  = "✓"
	IconError    = "✗"
	IconWarning  = "⚠"
	IconInfo     = "ℹ"
	IconArrow    = "→"
	IconPending  = "◌"
	IconStream   = "⇶"
	IconDatabase = "🗄️"
	IconKestrel  = "🪶"
)

// FormatSuccess formats a success message with icon
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	keyStyle := lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(20)
	return keyStyle.Render(key+":") + " " + Highlight.Render(value)
}

// Table renders rows in a bordered grid.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with headers
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow adds a row; missing cells are blank and extra cells are dropped.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	for i := range t.headers {
		if i < len(values) {
			row[i] = values[i]
			if w := lipgloss.Width(values[i]); w > t.widths[i] {
				t.widths[i] = w
			}
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render returns the formatted table string
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	border := lipgloss.NewStyle().Foreground(Border)
	header := lipgloss.NewStyle().Bold(true).Foreground(Primary)
	cell := lipgloss.NewStyle().Foreground(Text)

	line := func(left, mid, right string) string {
		parts := make([]string, len(t.widths))
		for i, w := range t.widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		return border.Render(left + strings.Join(parts, mid) + right)
	}
	row := func(values []string, style lipgloss.Style) string {
		var sb strings.Builder
		sb.WriteString(border.Render("│"))
		for i, v := range values {
			pad := t.widths[i] - lipgloss.Width(v)
			sb.WriteString(" " + style.Render(v) + strings.Repeat(" ", pad) + " ")
			sb.WriteString(border.Render("│"))
		}
		return sb.String()
	}

	var sb strings.Builder
	sb.WriteString(line("┌", "┬", "┐") + "\n")
	sb.WriteString(row(t.headers, header) + "\n")
	sb.WriteString(line("├", "┼", "┤") + "\n")
	for _, r := range t.rows {
		sb.WriteString(row(r, cell) + "\n")
	}
	sb.WriteString(line("└", "┴", "┘"))

	return sb.String()
}

// Banner returns the one-line CLI banner.
func Banner() string {
	return Title.Render(fmt.Sprintf("%s kestrel", IconKestrel))
}

// DisableColors disables all colors for terminals that don't support them
func DisableColors() {
	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &Secondary,
		&Success, &Warning, &Error, &Info,
		&Text, &TextMuted, &Surface, &Border,
	} {
		*c = lipgloss.Color("")
	}
	build()
}
