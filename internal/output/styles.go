package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	colorOK     = lipgloss.Color("#04B575")
	colorWarn   = lipgloss.Color("#FFB800")
	colorFail   = lipgloss.Color("#FF4040")
	colorAccent = lipgloss.Color("#00BFFF")
	colorDim    = lipgloss.Color("#666666")
	colorLabel  = lipgloss.Color("#AAAAAA")
)

// Status is the outcome a panel reports. It picks the border colour and
// the marker printed next to per-file rows.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
)

func (s Status) color() lipgloss.Color {
	switch s {
	case StatusWarn:
		return colorWarn
	case StatusFail:
		return colorFail
	default:
		return colorOK
	}
}

// Mark returns the coloured marker for s.
func (s Status) Mark() string {
	marker := "✔"
	switch s {
	case StatusWarn:
		marker = "⚠"
	case StatusFail:
		marker = "✘"
	}
	return lipgloss.NewStyle().Foreground(s.color()).Bold(true).Render(marker)
}

// Emphasize renders text in the status colour.
func (s Status) Emphasize(text string) string {
	return lipgloss.NewStyle().Foreground(s.color()).Bold(true).Render(text)
}

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorLabel).
			Width(16)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// panel draws a rounded box of fixed width with a heading line on top.
func panel(s Status, heading, body string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(s.color()).
		Padding(0, 1).
		Width(boxWidth).
		Render(headingStyle.Render(heading) + "\n" + body)
}
