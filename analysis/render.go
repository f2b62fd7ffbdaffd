package analysis

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const barWidth = 60

// Render returns the statistics table followed by a text histogram.
func Render(s Summary, title string) string {
	var b strings.Builder
	b.WriteString(StatsTable(s, title))
	b.WriteString("\n")
	b.WriteString(HistogramTable(s))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Verdict: %s (mean deviation %.2f%%, std dev deviation %.2f%%)\n",
		s.Verdict(), s.MeanDeviation*100, s.StdDevDeviation*100)
	return b.String()
}

// StatsTable renders the summary statistics.
func StatsTable(s Summary, title string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Total Samples", humanize.Comma(int64(s.Count))},
		{"Mean", fmt.Sprintf("%.4f", s.Mean)},
		{"Median", fmt.Sprintf("%.4f", s.Median)},
		{"Standard Deviation", fmt.Sprintf("%.4f", s.StdDev)},
		{"Min Value", formatBound(s.Min, s.Integer)},
		{"Max Value", formatBound(s.Max, s.Integer)},
		{"Theoretical Mean", fmt.Sprintf("%.4f", s.TheoreticalMean)},
		{"Theoretical Std Dev", fmt.Sprintf("%.4f", s.TheoreticalStdDev)},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return tw.Render()
}

// HistogramTable renders one row per bin with a proportional bar.
func HistogramTable(s Summary) string {
	maxCount := 0
	for _, bin := range s.Histogram {
		if bin.Count > maxCount {
			maxCount = bin.Count
		}
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("Distribution (%d bins)", len(s.Histogram)))
	tw.AppendHeader(table.Row{"Range", "", "Count", "%"})
	for _, bin := range s.Histogram {
		width := 0
		if maxCount > 0 {
			width = bin.Count * barWidth / maxCount
		}
		tw.AppendRow(table.Row{
			binLabel(bin, s.Integer),
			strings.Repeat("█", width),
			humanize.Comma(int64(bin.Count)),
			fmt.Sprintf("%.2f", bin.Percent),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return tw.Render()
}

func binLabel(bin Bin, integer bool) string {
	if integer {
		return fmt.Sprintf("%3d-%3d", int(bin.Low), int(bin.High)-1)
	}
	return fmt.Sprintf("%.3f-%.3f", bin.Low, bin.High)
}

func formatBound(v float64, integer bool) string {
	if integer {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.4f", v)
}
