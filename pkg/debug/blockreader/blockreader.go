package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"recordstore/pkg/debug/ui"
	"recordstore/pkg/primitives"
	"recordstore/pkg/storage/access"
)

type blockKeyMap struct {
	ui.CommonKeyMap
	ui.NavigationKeyMap
	Header key.Binding
}

var blockKeys = blockKeyMap{
	CommonKeyMap:     ui.CommonKeys,
	NavigationKeyMap: ui.NavigationKeys,
	Header: key.NewBinding(
		key.WithKeys("H"),
		key.WithHelp("H", "file header"),
	),
}

type view int

const (
	viewLoading view = iota
	viewFiles
	viewBlock
	viewHeader
)

type blockModel struct {
	path      primitives.Filepath
	kind      access.Kind
	inspector *access.Inspector
	current   view
	cursor    int
	file      *access.FileView
	blockID   primitives.BlockID
	block     access.BlockView
	rowCursor int
	viewport  viewport.Model
	width     int
	height    int
	err       error
}

func initialBlockModel(path primitives.Filepath, kind access.Kind) blockModel {
	return blockModel{
		path:     path,
		kind:     kind,
		current:  viewLoading,
		viewport: viewport.New(80, 20),
	}
}

func (m blockModel) Init() tea.Cmd {
	return openInspector(m.path, m.kind)
}

type openedMsg struct {
	inspector *access.Inspector
	err       error
}

func openInspector(path primitives.Filepath, kind access.Kind) tea.Cmd {
	return func() tea.Msg {
		in, err := access.OpenInspector(kind, path)
		return openedMsg{inspector: in, err: err}
	}
}

type blockLoadedMsg struct {
	id    primitives.BlockID
	block access.BlockView
	err   error
}

func loadBlock(f *access.FileView, id primitives.BlockID) tea.Cmd {
	return func() tea.Msg {
		b, err := f.Block(id)
		return blockLoadedMsg{id: id, block: b, err: err}
	}
}

func (m blockModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.inspector = msg.inspector
		m.current = viewFiles
		return m, nil

	case blockLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.blockID = msg.id
		m.block = msg.block
		m.rowCursor = 0
		m.current = viewBlock
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 10
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, blockKeys.Quit) {
			if m.inspector != nil {
				_ = m.inspector.Close()
			}
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m blockModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.current {
	case viewFiles:
		files := m.inspector.Files()
		switch {
		case key.Matches(msg, blockKeys.Up):
			m.cursor = max(m.cursor-1, 0)
		case key.Matches(msg, blockKeys.Down):
			m.cursor = min(m.cursor+1, len(files)-1)
		case key.Matches(msg, blockKeys.Header):
			m.file = files[m.cursor]
			m.viewport.SetContent(m.file.Header())
			m.viewport.GotoTop()
			m.current = viewHeader
		case key.Matches(msg, blockKeys.Select):
			m.file = files[m.cursor]
			if m.file.BlockCount() > 0 {
				return m, loadBlock(m.file, 0)
			}
		}

	case viewBlock:
		last := primitives.BlockID(m.file.BlockCount() - 1)
		switch {
		case key.Matches(msg, blockKeys.Back):
			m.current = viewFiles
		case key.Matches(msg, blockKeys.Up):
			m.rowCursor = max(m.rowCursor-1, 0)
		case key.Matches(msg, blockKeys.Down):
			m.rowCursor = max(min(m.rowCursor+1, len(m.block.Slots)-1), 0)
		case key.Matches(msg, blockKeys.NextPage), key.Matches(msg, blockKeys.Right):
			if m.blockID < last {
				return m, loadBlock(m.file, m.blockID+1)
			}
		case key.Matches(msg, blockKeys.PrevPage), key.Matches(msg, blockKeys.Left):
			if m.blockID > 0 {
				return m, loadBlock(m.file, m.blockID-1)
			}
		case key.Matches(msg, blockKeys.FirstPage):
			return m, loadBlock(m.file, 0)
		case key.Matches(msg, blockKeys.LastPage):
			return m, loadBlock(m.file, last)
		case key.Matches(msg, blockKeys.Header):
			m.viewport.SetContent(m.file.Header())
			m.viewport.GotoTop()
			m.current = viewHeader
		}

	case viewHeader:
		if key.Matches(msg, blockKeys.Back) {
			m.current = viewFiles
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m blockModel) View() string {
	if m.err != nil {
		return ui.RenderError(m.err)
	}

	var b strings.Builder
	b.WriteString(ui.RenderTitle("▤", "Block Reader · "+m.kind.String()) + "\n")

	switch m.current {
	case viewLoading:
		b.WriteString("Opening " + m.path.String() + "...\n")
	case viewFiles:
		b.WriteString(m.renderFiles())
	case viewBlock:
		b.WriteString(m.renderBlock())
	case viewHeader:
		b.WriteString(ui.RenderHeaderWithCount(m.file.Path().Base(), -1) + "\n")
		b.WriteString(m.viewport.View() + "\n")
		b.WriteString(ui.HelpStyle.Render("↑/↓: scroll | esc: back | q: quit"))
	}

	b.WriteString("\n" + m.renderStatusBar())
	return b.String()
}

func (m blockModel) renderFiles() string {
	var b strings.Builder
	files := m.inspector.Files()
	b.WriteString(ui.RenderHeaderWithCount("Files", len(files)) + "\n\n")

	for i, f := range files {
		line := fmt.Sprintf("%-10s %s  (%s blocks)", f.Label, f.Path().Base(), humanize.Comma(int64(f.BlockCount()))) // #nosec G115
		if i == m.cursor {
			b.WriteString(ui.SelectedItemStyle.Render("▶ "+line) + "\n")
		} else {
			b.WriteString(ui.ItemStyle.Render("  "+line) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(ui.HelpStyle.Render("↑/↓: navigate | enter: view blocks | H: header | q: quit"))
	return b.String()
}

func (m blockModel) renderBlock() string {
	var b strings.Builder

	info := fmt.Sprintf("Block %d/%d · %d slots · %s used · %s free",
		m.blockID, m.file.BlockCount()-1, len(m.block.Slots),
		humanize.Bytes(uint64(m.block.Used)), humanize.Bytes(uint64(m.block.Free))) // #nosec G115
	if m.block.Prev >= 0 {
		info += fmt.Sprintf(" · prev %d", m.block.Prev)
	}
	b.WriteString(ui.HeaderStyle.Render(info) + "\n\n")

	if len(m.block.Slots) == 0 {
		b.WriteString("Empty block.\n")
	} else {
		headers := append([]string{"Slot", "Id", "Len"}, m.inspector.Columns()...)
		rows := make([][]string, len(m.block.Slots))
		for i, s := range m.block.Slots {
			rows[i] = slotRow(s, len(headers))
		}
		deleted := func(r int) bool { return m.block.Slots[r].Tombstone }
		b.WriteString(ui.RenderTable(headers, rows, columnWidths(headers, rows), m.rowCursor, deleted))
	}

	b.WriteString("\n")
	b.WriteString(ui.HelpStyle.Render("↑/↓: slots | n/p: next/prev block | g/G: first/last | H: header | esc: back | q: quit"))
	return b.String()
}

func slotRow(s access.SlotView, width int) []string {
	row := make([]string, width)
	row[0] = strconv.Itoa(s.Slot)
	row[2] = strconv.Itoa(s.Length)
	if s.Tombstone {
		row[1] = "deleted"
		if width > 3 {
			row[3] = "next " + s.NextDeleted.String()
		}
		return row
	}
	row[1] = strconv.FormatUint(uint64(s.ID), 10)
	copy(row[3:], s.Values)
	return row
}

func columnWidths(headers []string, rows [][]string) []int {
	const maxWidth = 30
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for r := range rows {
		for i, cell := range rows[r] {
			if len(cell) > maxWidth {
				rows[r][i] = ui.TruncateString(cell, maxWidth)
				cell = rows[r][i]
			}
			widths[i] = max(widths[i], len(cell))
		}
	}
	return widths
}

func (m blockModel) renderStatusBar() string {
	var status string
	switch m.current {
	case viewFiles:
		status = fmt.Sprintf(" %s | %s | %s ", m.path, m.kind, humanize.Bytes(m.inspector.Size()))
	case viewBlock:
		status = fmt.Sprintf(" %s | Block %d | Slot %d/%d ", m.file.Path().Base(), m.blockID, m.rowCursor+1, len(m.block.Slots))
	case viewHeader:
		status = fmt.Sprintf(" %s | header ", m.file.Path().Base())
	default:
		status = " Loading... "
	}
	return ui.RenderStatusBar(status)
}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: blockreader <file> <heap|heapvar|hash|ordered>")
		os.Exit(1)
	}

	kind, err := access.ParseKind(os.Args[2])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(
		initialBlockModel(primitives.Filepath(os.Args[1]), kind),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
