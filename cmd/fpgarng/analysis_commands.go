package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thiagojm/fpga_rng_linux/analysis"
	"github.com/Thiagojm/fpga_rng_linux/drawlog"
	"github.com/Thiagojm/fpga_rng_linux/follow"
	"github.com/Thiagojm/fpga_rng_linux/report"
	"github.com/Thiagojm/fpga_rng_linux/rngbuf"
)

const defaultDistributionBytes = 100000

func newDistributionCommand(ctx *commandContext) *cobra.Command {
	var (
		device string
		size   int
		bins   int
		xlsx   string
	)
	cmd := &cobra.Command{
		Use:   "distribution",
		Short: "Collect bytes from the board and check their distribution",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			path, lock, err := ctx.resolveDevice(cmd.Context(), client, device)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Collecting %s random bytes from %s\n", humanize.Comma(int64(size)), path)

			var data []byte
			err = withStream(cmd.Context(), client, path, ctx.log(), func() error {
				bar := progressbar.NewOptions(size,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("Reading bytes"),
					progressbar.OptionShowBytes(true),
					progressbar.OptionSetPredictTime(true),
				)
				defer func() { _ = bar.Finish() }()
				var err error
				data, err = client.ReadBytes(cmd.Context(), path, size, 0, func(n int) {
					_ = bar.Add(n)
				})
				return err
			})
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return errors.New("collection interrupted before any byte arrived")
			}
			fmt.Fprintln(out)

			summary := analysis.AnalyzeBytes(data, bins)
			fmt.Fprintln(out, analysis.Render(summary, "FPGA byte distribution"))

			if xlsx != "" {
				values := make([]float64, len(data))
				for i, b := range data {
					values[i] = float64(b)
				}
				if err := report.WriteWorkbook(xlsx, report.Workbook{
					Title:   "FPGA byte distribution",
					Source:  path,
					Created: time.Now(),
					Values:  values,
					Summary: summary,
				}); err != nil {
					return err
				}
				fmt.Fprintf(out, "Report written to %s\n", xlsx)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&device, "device", "d", "", "Serial device path (default: configured port or auto-detect)")
	flags.IntVarP(&size, "bytes", "n", defaultDistributionBytes, "Number of bytes to collect")
	flags.IntVar(&bins, "bins", analysis.DefaultBins, "Histogram bins")
	flags.StringVar(&xlsx, "xlsx", "", "Also write an xlsx report to this path")
	return cmd
}

// window keeps the values used for live statistics; size 0 keeps everything.
type window struct {
	ring *rngbuf.Ring

	mu  sync.Mutex
	all []float64
}

func newWindow(size int) *window {
	if size > 0 {
		return &window{ring: rngbuf.New(size)}
	}
	return &window{}
}

func (w *window) add(v float64) {
	if w.ring != nil {
		w.ring.Push(v)
		return
	}
	w.mu.Lock()
	w.all = append(w.all, v)
	w.mu.Unlock()
}

func (w *window) values() []float64 {
	if w.ring != nil {
		return w.ring.Snapshot()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.all...)
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		history   int
		bins      int
		interval  time.Duration
		fromStart bool
	)
	cmd := &cobra.Command{
		Use:   "watch [log-file]",
		Short: "Follow a value log and show live distribution statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.configValue().Service.DrawLog
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no log file given and service.draw_log is not configured")
			}
			win := newWindow(history)
			follower := follow.New(path, func(d drawlog.Draw) { win.add(d.Value) }, follow.Options{
				FromStart: fromStart,
				Logger:    ctx.log(),
			})
			return watch(cmd.Context(), cmd.OutOrStdout(), follower, win, path, bins, interval)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&history, "history", 0, "Use only the most recent N values (0 uses all)")
	flags.IntVar(&bins, "bins", analysis.DefaultBins, "Histogram bins")
	flags.DurationVar(&interval, "interval", time.Second, "Redraw interval")
	flags.BoolVar(&fromStart, "from-start", true, "Read the existing file content before tailing")
	return cmd
}

func watch(ctx context.Context, out io.Writer, follower *follow.Follower, win *window, path string, bins int, interval time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return follower.Run(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		redraw := isTerminalWriter(out)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
			values := win.values()
			if redraw {
				fmt.Fprint(out, "\033[H\033[2J")
			}
			fmt.Fprintf(out, "Monitoring %s  (%s values, %d skipped)\n", path, humanize.Comma(int64(len(values))), follower.Skipped())
			fmt.Fprintln(out, analysis.Render(analysis.AnalyzeUnit(values, bins), "Live RNG statistics"))
		}
	})
	return ignoreCanceled(g.Wait())
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	var (
		output  string
		title   string
		bins    int
		history int
	)
	cmd := &cobra.Command{
		Use:   "report [values-file]",
		Short: "Analyse a value file or the history database and write an xlsx report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				values []float64
				origin string
			)
			switch {
			case len(args) == 1:
				var skipped int
				var err error
				values, skipped, err = drawlog.ReadValues(args[0])
				if err != nil {
					return err
				}
				if skipped > 0 {
					ctx.log().Warn("skipped malformed lines", zap.String("file", args[0]), zap.Int("skipped", skipped))
				}
				origin = args[0]
			default:
				store, err := openHistory(ctx, "")
				if err != nil {
					return err
				}
				defer store.Close()
				values, err = store.Values(cmd.Context(), history)
				if err != nil {
					return err
				}
				origin = store.Path()
			}
			if len(values) == 0 {
				return fmt.Errorf("%s: no values to analyse", origin)
			}

			summary := analysis.AnalyzeUnit(values, bins)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, analysis.Render(summary, title))

			target := output
			if target == "" {
				target = report.DefaultName("rng_report", time.Now())
			}
			if err := report.WriteWorkbook(target, report.Workbook{
				Title:   title,
				Source:  origin,
				Created: time.Now(),
				Values:  values,
				Summary: summary,
			}); err != nil {
				return err
			}
			fmt.Fprintf(out, "Report written to %s\n", target)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "Report path (default rng_report_<timestamp>.xlsx)")
	flags.StringVar(&title, "title", "RNG value distribution", "Report title")
	flags.IntVar(&bins, "bins", analysis.DefaultBins, "Histogram bins")
	flags.IntVar(&history, "history", 0, "Without a file, use the most recent N values from the history database (0 uses all)")
	return cmd
}
