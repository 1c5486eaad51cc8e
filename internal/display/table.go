package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// BorderStyle defines table border characters
type BorderStyle struct {
	Corner     string
	Horizontal string
	Vertical   string
}

// Border styles
var (
	ASCIIBorderStyle = BorderStyle{Corner: "+", Horizontal: "-", Vertical: "|"}
	NoBorderStyle    = BorderStyle{}
)

// Table renders rows of strings as an aligned text table
type Table struct {
	headers    []string
	rows       [][]string
	alignments map[int]Alignment
	border     BorderStyle
	padding    int
	maxWidth   int
	colors     ColorSystem
}

// NewTable creates a bordered table that fits the terminal width.
// colors may be nil.
func NewTable(colors ColorSystem, headers ...string) *Table {
	return &Table{
		headers:    headers,
		alignments: make(map[int]Alignment),
		border:     ASCIIBorderStyle,
		padding:    1,
		maxWidth:   getTerminalWidth(),
		colors:     colors,
	}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// SetColumnAlignment sets the alignment for a specific column
func (t *Table) SetColumnAlignment(column int, alignment Alignment) {
	t.alignments[column] = alignment
}

// SetBorder replaces the border style
func (t *Table) SetBorder(border BorderStyle) {
	t.border = border
}

// SetMaxWidth bounds the rendered width; zero disables the bound
func (t *Table) SetMaxWidth(width int) {
	t.maxWidth = width
}

// Render returns the formatted table as a string
func (t *Table) Render() string {
	widths := t.columnWidths()
	if len(widths) == 0 {
		return ""
	}
	widths = t.fitWidths(widths)

	var b strings.Builder
	separator := t.separator(widths)
	if separator != "" {
		b.WriteString(separator + "\n")
	}
	if len(t.headers) > 0 {
		b.WriteString(t.renderRow(t.headers, widths, true) + "\n")
		if separator != "" {
			b.WriteString(separator + "\n")
		}
	}
	for _, row := range t.rows {
		b.WriteString(t.renderRow(row, widths, false) + "\n")
	}
	if separator != "" {
		b.WriteString(separator + "\n")
	}
	return b.String()
}

// RenderTo renders the table to w
func (t *Table) RenderTo(w io.Writer) error {
	_, err := fmt.Fprint(w, t.Render())
	return err
}

func (t *Table) columnWidths() []int {
	cols := len(t.headers)
	for _, row := range t.rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	widths := make([]int, cols)
	measure := func(cells []string) {
		for i, cell := range cells {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}
	return widths
}

// fitWidths shrinks the widest column until the table fits maxWidth
func (t *Table) fitWidths(widths []int) []int {
	if t.maxWidth <= 0 {
		return widths
	}
	const minWidth = 4
	for t.totalWidth(widths) > t.maxWidth {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minWidth {
			break
		}
		widths[widest]--
	}
	return widths
}

func (t *Table) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w + t.padding*2
	}
	if t.border.Vertical != "" {
		total += len(widths) + 1
	} else {
		total += len(widths) - 1
	}
	return total
}

func (t *Table) separator(widths []int) string {
	if t.border.Horizontal == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(t.border.Corner)
	for _, w := range widths {
		b.WriteString(strings.Repeat(t.border.Horizontal, w+t.padding*2))
		b.WriteString(t.border.Corner)
	}
	return b.String()
}

func (t *Table) renderRow(cells []string, widths []int, header bool) string {
	var b strings.Builder
	gap := t.border.Vertical
	if gap == "" {
		gap = " "
	}
	if t.border.Vertical != "" {
		b.WriteString(t.border.Vertical)
	}
	for i, width := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		b.WriteString(t.formatCell(cell, width, t.alignments[i], header))
		if t.border.Vertical != "" || i < len(widths)-1 {
			b.WriteString(gap)
		}
	}
	if t.border.Vertical == "" {
		return strings.TrimRight(b.String(), " ")
	}
	return b.String()
}

// formatCell truncates, aligns and pads one cell; color is applied after padding
func (t *Table) formatCell(content string, width int, alignment Alignment, header bool) string {
	if utf8.RuneCountInString(content) > width {
		runes := []rune(content)
		if width > 3 {
			content = string(runes[:width-3]) + "..."
		} else {
			content = string(runes[:width])
		}
	}

	fill := strings.Repeat(" ", width-utf8.RuneCountInString(content))
	if header && t.colors != nil {
		content = t.colors.Colorize(content, t.colors.Theme().Primary)
	}
	pad := strings.Repeat(" ", t.padding)
	if alignment == AlignRight {
		return pad + fill + content + pad
	}
	return pad + content + fill + pad
}

// getTerminalWidth returns the stdout terminal width, or zero when stdout is not a terminal
func getTerminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return width
}
