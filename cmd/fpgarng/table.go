package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is one table column. Numeric columns are right aligned.
type column struct {
	title   string
	numeric bool
}

func col(title string) column { return column{title: title} }
func num(title string) column { return column{title: title, numeric: true} }

// textColumns builds left aligned columns from titles.
func textColumns(titles ...string) []column {
	out := make([]column, len(titles))
	for i, t := range titles {
		out[i] = col(t)
	}
	return out
}

func newTableWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

// renderTable renders rows under columns. Short rows are padded and extra
// cells dropped. An empty row set renders a single "none" row.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := newTableWriter()

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.title
		align := text.AlignLeft
		if c.numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	if len(rows) == 0 {
		empty := make(table.Row, len(columns))
		empty[0] = "none"
		tw.AppendRow(empty)
		return tw.Render()
	}
	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

// summary is an ordered list of label/value pairs.
type summary [][2]string

func (s *summary) add(label, value string) { *s = append(*s, [2]string{label, value}) }

// renderSummary renders s as a two column table titled title.
func renderSummary(title string, s summary) string {
	tw := newTableWriter()
	tw.SetTitle(title)
	for _, kv := range s {
		tw.AppendRow(table.Row{kv[0], kv[1]})
	}
	tw.Style().Title.Align = text.AlignCenter
	return tw.Render()
}
