package main

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/width"
)

// displayWidth 终端显示宽度，全角和宽字符占两列
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

func pad(s string, w int) string {
	if d := w - displayWidth(s); d > 0 {
		return s + strings.Repeat(" ", d)
	}
	return s
}

func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderTable 以 ASCII 表格输出结果，末尾附行数
func renderTable(w io.Writer, columns []string, rows [][]interface{}) {
	cells := make([][]string, len(rows))
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = displayWidth(c)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i := range columns {
			if i < len(row) {
				cells[r][i] = cellText(row[i])
			}
			widths[i] = max(widths[i], displayWidth(cells[r][i]))
		}
	}

	sep := "+"
	for _, wd := range widths {
		sep += strings.Repeat("-", wd+2) + "+"
	}
	line := func(vals []string) {
		var sb strings.Builder
		sb.WriteString("|")
		for i, v := range vals {
			sb.WriteString(" " + pad(v, widths[i]) + " |")
		}
		fmt.Fprintln(w, sb.String())
	}

	if len(columns) > 0 {
		fmt.Fprintln(w, sep)
		line(columns)
		fmt.Fprintln(w, sep)
		for _, row := range cells {
			line(row)
		}
		fmt.Fprintln(w, sep)
	}
	if len(rows) == 1 {
		fmt.Fprintln(w, "1 row")
	} else {
		fmt.Fprintf(w, "%d rows\n", len(rows))
	}
}
