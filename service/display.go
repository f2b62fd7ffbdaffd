package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Thiagojm/fpga_rng_linux/source"
)

// DisplayInterval is the live table refresh period.
const DisplayInterval = 500 * time.Millisecond

// Display redraws a statistics table in place on a terminal.
type Display struct {
	w        io.Writer
	tracker  *Tracker
	provider source.Provider
	interval time.Duration
	now      func() time.Time
	lines    int
}

// NewDisplay draws stats for tracker and provider to w.
func NewDisplay(w io.Writer, tracker *Tracker, provider source.Provider) *Display {
	return &Display{w: w, tracker: tracker, provider: provider, interval: DisplayInterval, now: time.Now}
}

// Run redraws until ctx is cancelled.
func (d *Display) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.draw()
		}
	}
}

func (d *Display) draw() {
	out := d.Render()
	var b strings.Builder
	for i := 0; i < d.lines; i++ {
		b.WriteString(text.CursorUp.Sprint())
		b.WriteString(text.EraseLine.Sprint())
	}
	b.WriteString("\r")
	b.WriteString(out)
	b.WriteString("\n")
	d.lines = strings.Count(out, "\n") + 1
	_, _ = io.WriteString(d.w, b.String())
}

// Render returns the current table.
func (d *Display) Render() string {
	st := d.tracker.Snapshot(d.now())

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("RNG Service Stats")
	tw.AppendHeader(table.Row{"Metric", "Current", "Average"})
	tw.AppendRows([]table.Row{
		{"Requests/sec", fmt.Sprintf("%.1f", st.RPS1s), fmt.Sprintf("%.1f", st.RPSAvg)},
		{"Requests/sec (10s)", fmt.Sprintf("%.1f", st.RPS10s), ""},
		{"Peak Requests/sec", fmt.Sprintf("%.1f", st.PeakRPS), ""},
		{"Bytes/sec", humanize.Bytes(uint64(st.BPSCurrent)), humanize.Bytes(uint64(st.BPSAvg))},
		{"Total Requests", humanize.Comma(int64(st.TotalRequests)), ""},
		{"Uptime", (time.Duration(st.Uptime * float64(time.Second))).Round(time.Second).String(), ""},
	})

	if d.provider != nil {
		ps := d.provider.Status()
		switch ps.Mode {
		case source.ModeFile:
			progress := "N/A"
			if ps.TotalNumbers > 0 {
				progress = fmt.Sprintf("%.1f%%", float64(ps.CurrentIndex)/float64(ps.TotalNumbers)*100)
			}
			tw.AppendRow(table.Row{"File Progress", fmt.Sprintf("%d/%d", ps.CurrentIndex, ps.TotalNumbers), progress})
		case source.ModeHardware:
			tw.AppendRow(table.Row{"Buffer", fmt.Sprintf("%s/%s", humanize.Comma(int64(ps.Buffered)), humanize.Comma(int64(ps.Capacity))), ""})
			tw.AppendRow(table.Row{"Software Fallbacks", humanize.Comma(int64(ps.Fallbacks)), ""})
			if ps.Stream != nil {
				state := "disconnected"
				if ps.Stream.Connected {
					state = "streaming"
				}
				tw.AppendRow(table.Row{"Device", ps.Stream.Device, state})
				tw.AppendRow(table.Row{"Bytes Read", humanize.Bytes(ps.Stream.BytesRead), ""})
			}
		}
	}
	return tw.Render()
}
