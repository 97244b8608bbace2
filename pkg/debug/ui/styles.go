// Package ui holds the lipgloss styles and key maps shared by the debug
// readers.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"recordstore/pkg/ui/base"
)

var (
	PrimaryColor   = base.AdaptivePrimary
	SecondaryColor = base.AdaptiveSecondary
	ErrorColor     = base.AdaptiveError
	MutedColor     = base.AdaptiveMuted
	FgColor        = base.AdaptiveText
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(PrimaryColor).
			Padding(0, 1)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(PrimaryColor).
				Bold(true).
				Padding(0, 1)

	ItemStyle = lipgloss.NewStyle().
			Foreground(FgColor).
			Padding(0, 1)

	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(SecondaryColor).
				Bold(true).
				Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Foreground(FgColor).
			Padding(0, 1)

	// DeletedCellStyle renders tombstoned slots.
	DeletedCellStyle = CellStyle.
				Foreground(MutedColor).
				Strikethrough(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			MarginTop(1).
			Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(PrimaryColor).
			Padding(0, 1).
			MarginTop(1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true).
			Padding(1)
)

type CommonKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Left   key.Binding
	Right  key.Binding
	Select key.Binding
	Back   key.Binding
	Quit   key.Binding
}

var CommonKeys = CommonKeyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Left:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "previous")),
	Right:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next")),
	Select: key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "open")),
	Back:   key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// NavigationKeyMap moves between blocks of a file.
type NavigationKeyMap struct {
	NextPage  key.Binding
	PrevPage  key.Binding
	FirstPage key.Binding
	LastPage  key.Binding
}

var NavigationKeys = NavigationKeyMap{
	NextPage:  key.NewBinding(key.WithKeys("n", "pgdown"), key.WithHelp("n", "next block")),
	PrevPage:  key.NewBinding(key.WithKeys("p", "pgup"), key.WithHelp("p", "previous block")),
	FirstPage: key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "first block")),
	LastPage:  key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "last block")),
}

var (
	PadString      = base.PadString
	TruncateString = base.TruncateString
)

// RenderError renders err with a quit hint.
func RenderError(err error) string {
	return ErrorStyle.Render(lipgloss.JoinVertical(lipgloss.Left, "Error: "+err.Error(), "", "Press q to quit."))
}

func RenderStatusBar(text string) string {
	return StatusBarStyle.Render(text)
}

func RenderTitle(icon, title string) string {
	return TitleStyle.Render(icon + "  " + title)
}

// RenderHeaderWithCount renders a boxed header; a negative count is omitted.
func RenderHeaderWithCount(text string, count int) string {
	if count >= 0 {
		return HeaderStyle.Render(fmt.Sprintf(" %s (%d) ", text, count))
	}
	return HeaderStyle.Render(" " + text + " ")
}

// RenderTable renders rows under headers. The selected row is highlighted
// and rows for which muted returns true use DeletedCellStyle.
func RenderTable(headers []string, rows [][]string, widths []int, selected int, muted func(row int) bool) string {
	var b strings.Builder

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = TableHeaderStyle.Render(PadString(h, widths[i]))
	}
	b.WriteString(strings.Join(cells, " ") + "\n")

	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("─", w+2)
	}
	b.WriteString(lipgloss.NewStyle().Foreground(MutedColor).Render(strings.Join(sep, "┼")) + "\n")

	for r, row := range rows {
		style := CellStyle
		switch {
		case r == selected:
			style = SelectedItemStyle
		case muted != nil && muted(r):
			style = DeletedCellStyle
		}
		cells = cells[:0]
		for i, cell := range row {
			cells = append(cells, style.Render(PadString(cell, widths[i])))
		}
		b.WriteString(strings.Join(cells, " ") + "\n")
	}
	return b.String()
}
