package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Thiagojm/fpga_rng_linux/drawlog"
)

func openHistory(ctx *commandContext, override string) (*drawlog.Store, error) {
	path := override
	if path == "" {
		path = ctx.configValue().Service.HistoryDB
	}
	if path == "" {
		return nil, errors.New("no history database given and service.history_db is not configured")
	}
	return drawlog.OpenStore(path)
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently served values from the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			total, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			byOrigin, err := store.CountByOrigin(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s values recorded in %s\n", humanize.Comma(total), store.Path())
			if total == 0 {
				return nil
			}

			origins := make([]string, 0, len(byOrigin))
			for o := range byOrigin {
				origins = append(origins, o)
			}
			sort.Strings(origins)
			rows := make([][]string, 0, len(origins))
			for _, o := range origins {
				rows = append(rows, []string{
					o,
					humanize.Comma(byOrigin[o]),
					fmt.Sprintf("%.1f%%", float64(byOrigin[o])*100/float64(total)),
				})
			}
			fmt.Fprintln(out, renderTable([]column{col("Origin"), num("Count"), num("Share")}, rows))

			recent, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows = rows[:0]
			for _, d := range recent {
				rows = append(rows, []string{
					d.Time.Local().Format(time.DateTime),
					strconv.FormatFloat(d.Value, 'f', 6, 64),
					d.Origin,
				})
			}
			fmt.Fprintln(out, renderTable([]column{col("Time"), num("Value"), col("Origin")}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "History database path (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of recent values to show")
	return cmd
}
