// Package table renders bordered text tables. Cells may contain ANSI color
// sequences; they do not count towards column widths.
package table

import (
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Alignment of a column's cells.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

var ansi = regexp.MustCompile("\x1b\\[[0-9;]*m")

func stripAnsi(s string) string {
	return ansi.ReplaceAllString(s, "")
}

func width(s string) int {
	return utf8.RuneCountInString(stripAnsi(s))
}

// Table accumulates rows and renders them to a writer.
type Table struct {
	w         io.Writer
	header    []string
	headerAln []Alignment
	columnAln []Alignment
	rows      [][]string
}

// NewTable returns an empty table writing to w.
func NewTable(w io.Writer) *Table {
	return &Table{w: w}
}

func (t *Table) WithHeader(header []string) *Table {
	t.header = header
	return t
}

func (t *Table) WithHeaderAlignment(a []Alignment) *Table {
	t.headerAln = a
	return t
}

func (t *Table) WithColumnAlignment(a []Alignment) *Table {
	t.columnAln = a
	return t
}

func (t *Table) WithRows(rows [][]string) *Table {
	t.rows = append(t.rows, rows...)
	return t
}

func (t *Table) Append(row []string) *Table {
	t.rows = append(t.rows, row)
	return t
}

func (t *Table) columns() []int {
	n := len(t.header)
	for _, r := range t.rows {
		n = max(n, len(r))
	}
	widths := make([]int, n)
	for i, h := range t.header {
		widths[i] = width(h)
	}
	for _, r := range t.rows {
		for i, cell := range r {
			widths[i] = max(widths[i], width(cell))
		}
	}
	return widths
}

func pad(s string, w int, a Alignment) string {
	gap := w - width(s)
	if gap <= 0 {
		return s
	}
	switch a {
	case AlignRight:
		return strings.Repeat(" ", gap) + s
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
	default:
		return s + strings.Repeat(" ", gap)
	}
}

func alignment(a []Alignment, i int) Alignment {
	if i < len(a) {
		return a[i]
	}
	return AlignLeft
}

// Render writes the table.
func (t *Table) Render() error {
	widths := t.columns()
	var b strings.Builder
	sep := func() {
		b.WriteByte('+')
		for _, w := range widths {
			b.WriteString(strings.Repeat("-", w+2))
			b.WriteByte('+')
		}
		b.WriteByte('\n')
	}
	row := func(cells []string, aln []Alignment) {
		b.WriteByte('|')
		for i, w := range widths {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteByte(' ')
			b.WriteString(pad(cell, w, alignment(aln, i)))
			b.WriteString(" |")
		}
		b.WriteByte('\n')
	}
	sep()
	if len(t.header) > 0 {
		row(t.header, t.headerAln)
		sep()
	}
	for _, r := range t.rows {
		row(r, t.columnAln)
	}
	if len(t.rows) > 0 {
		sep()
	}
	_, err := io.WriteString(t.w, b.String())
	return err
}
