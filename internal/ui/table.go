package ui

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	runewidth "github.com/mattn/go-runewidth"
)

// maxCellWidth truncates long cells such as URLs and error messages.
const maxCellWidth = 72

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// render writes the table with columns padded to their widest cell. Widths
// are measured in terminal cells, ignoring colour escapes.
func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for r, row := range t.rows {
		for i := range row {
			if i >= len(widths) {
				break
			}
			if visibleWidth(row[i]) > maxCellWidth {
				t.rows[r][i] = runewidth.Truncate(row[i], maxCellWidth, "…")
			}
			if cw := visibleWidth(t.rows[r][i]); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	writeRow(w, t.headers, widths)
	sep := make([]string, len(widths))
	for i, width := range widths {
		sep[i] = strings.Repeat("-", width)
	}
	writeRow(w, sep, widths)
	for _, row := range t.rows {
		writeRow(w, row, widths)
	}
}

func writeRow(w io.Writer, cells []string, widths []int) {
	var b strings.Builder
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		b.WriteString(cell)
		if i < len(widths)-1 {
			b.WriteString(strings.Repeat(" ", width-visibleWidth(cell)+2))
		}
	}
	fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
}

func visibleWidth(s string) int {
	return runewidth.StringWidth(ansiPattern.ReplaceAllString(s, ""))
}
