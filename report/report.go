// Package report writes random value samples and their analysis to Excel
// workbooks.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Thiagojm/fpga_rng_linux/analysis"
)

// Sheet names used in generated workbooks.
const (
	SummarySheet   = "Summary"
	ValuesSheet    = "Values"
	HistogramSheet = "Histogram"
)

// MaxChartPoints caps the number of values plotted in the sequence chart.
const MaxChartPoints = 1000

// Workbook describes one report.
type Workbook struct {
	Title   string
	Source  string
	Created time.Time
	Values  []float64
	Summary analysis.Summary
}

// WriteWorkbook saves wb as an .xlsx file at path, creating parent directories.
func WriteWorkbook(path string, wb Workbook) error {
	if wb.Created.IsZero() {
		wb.Created = time.Now()
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{ValuesSheet, HistogramSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := writeSummary(f, wb, bold); err != nil {
		return err
	}
	if err := writeValues(f, wb.Values, bold); err != nil {
		return err
	}
	if err := writeHistogram(f, wb.Summary, bold); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeSummary(f *excelize.File, wb Workbook, bold int) error {
	s := wb.Summary
	rows := [][]interface{}{
		{"Title", wb.Title},
		{"Source", wb.Source},
		{"Created", wb.Created.Format(time.RFC3339)},
		{"Total Samples", s.Count},
		{"Mean", s.Mean},
		{"Median", s.Median},
		{"Standard Deviation", s.StdDev},
		{"Min Value", s.Min},
		{"Max Value", s.Max},
		{"Theoretical Mean", s.TheoreticalMean},
		{"Theoretical Std Dev", s.TheoreticalStdDev},
		{"Mean Deviation %", s.MeanDeviation * 100},
		{"Std Dev Deviation %", s.StdDevDeviation * 100},
		{"Verdict", s.Verdict()},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(1, len(rows))
	if err := f.SetCellStyle(SummarySheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

func writeValues(f *excelize.File, values []float64, bold int) error {
	if err := f.SetSheetRow(ValuesSheet, "A1", &[]interface{}{"Index", "Value"}); err != nil {
		return fmt.Errorf("write values header: %w", err)
	}
	if err := f.SetCellStyle(ValuesSheet, "A1", "B1", bold); err != nil {
		return fmt.Errorf("style values header: %w", err)
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ValuesSheet, cell, &[]interface{}{i + 1, v}); err != nil {
			return fmt.Errorf("write value %d: %w", i+1, err)
		}
	}
	if len(values) == 0 {
		return nil
	}

	points := len(values)
	if points > MaxChartPoints {
		points = MaxChartPoints
	}
	return f.AddChart(ValuesSheet, "D2", &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$B$1", ValuesSheet),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", ValuesSheet, points+1),
			Values:     fmt.Sprintf("%s!$B$2:$B$%d", ValuesSheet, points+1),
		}},
		Title:  []excelize.RichTextRun{{Text: fmt.Sprintf("First %d values", points)}},
		Legend: excelize.ChartLegend{Position: "none"},
		Dimension: excelize.ChartDimension{
			Width:  720,
			Height: 320,
		},
	})
}

func writeHistogram(f *excelize.File, s analysis.Summary, bold int) error {
	header := []interface{}{"Low", "High", "Count", "Percent"}
	if err := f.SetSheetRow(HistogramSheet, "A1", &header); err != nil {
		return fmt.Errorf("write histogram header: %w", err)
	}
	if err := f.SetCellStyle(HistogramSheet, "A1", "D1", bold); err != nil {
		return fmt.Errorf("style histogram header: %w", err)
	}
	for i, bin := range s.Histogram {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{bin.Low, bin.High, bin.Count, bin.Percent}
		if err := f.SetSheetRow(HistogramSheet, cell, &row); err != nil {
			return fmt.Errorf("write bin %d: %w", i, err)
		}
	}
	if len(s.Histogram) == 0 {
		return nil
	}

	last := len(s.Histogram) + 1
	return f.AddChart(HistogramSheet, "F2", &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$C$1", HistogramSheet),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", HistogramSheet, last),
			Values:     fmt.Sprintf("%s!$C$2:$C$%d", HistogramSheet, last),
		}},
		Title:  []excelize.RichTextRun{{Text: "Distribution"}},
		Legend: excelize.ChartLegend{Position: "none"},
	})
}

// DefaultName returns a timestamped file name such as
// distribution_20240131_154500.xlsx.
func DefaultName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", prefix, t.Format("20060102_150405"))
}
