package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thiagojm/fpga_rng_linux/config"
	"github.com/Thiagojm/fpga_rng_linux/drawlog"
	"github.com/Thiagojm/fpga_rng_linux/fpga"
	"github.com/Thiagojm/fpga_rng_linux/logging"
	"github.com/Thiagojm/fpga_rng_linux/rngbuf"
	"github.com/Thiagojm/fpga_rng_linux/service"
	"github.com/Thiagojm/fpga_rng_linux/source"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		host       string
		port       int
		valuesFile string
		mode       string
		drawLog    string
		historyDB  string
		accessLog  string
		noAccess   bool
		noLive     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve random numbers over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *ctx.configValue()
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Service.Host = host
			}
			if flags.Changed("port") {
				cfg.Service.Port = port
			}
			if flags.Changed("file") {
				cfg.Service.ValuesFile = valuesFile
			}
			if flags.Changed("mode") {
				cfg.Service.Mode = mode
			}
			if flags.Changed("draw-log") {
				cfg.Service.DrawLog = drawLog
			}
			if flags.Changed("history-db") {
				cfg.Service.HistoryDB = historyDB
			}
			if flags.Changed("access-log") {
				cfg.Service.AccessLog = accessLog
			}
			if noAccess {
				cfg.Service.AccessLogs = false
			}
			if noLive {
				cfg.Service.LiveStats = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd.ErrOrStderr(), &cfg, ctx.log())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&host, "host", "", "Address to bind (default from config)")
	flags.IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	flags.StringVarP(&valuesFile, "file", "f", "", "Serve values from this file instead of the board")
	flags.StringVar(&mode, "mode", "", "Value source when no file is given: hardware or runtime")
	flags.StringVar(&drawLog, "draw-log", "", "Append every served value to this file")
	flags.StringVar(&historyDB, "history-db", "", "Record every served value in this SQLite database")
	flags.StringVar(&accessLog, "access-log", "", "Write access log lines to this file")
	flags.BoolVar(&noAccess, "no-access-logs", false, "Disable access logging")
	flags.BoolVar(&noLive, "no-live-stats", false, "Disable the live statistics table")
	return cmd
}

// buildProvider selects the value source. A values file that cannot be
// loaded falls back to runtime generation.
func buildProvider(cfg *config.Config, logger *zap.Logger) (source.Provider, *source.Streamer) {
	svc := cfg.Service
	if svc.ValuesFile != "" {
		values, err := source.LoadValues(svc.ValuesFile, logger)
		if err == nil {
			return source.NewFile(values, logger), nil
		}
		logger.Warn("values file unusable, falling back to runtime generation",
			zap.String("file", svc.ValuesFile), zap.Error(err))
		return source.NewRuntime(), nil
	}
	if svc.Mode == string(source.ModeRuntime) {
		return source.NewRuntime(), nil
	}

	ring := rngbuf.New(svc.BufferSize)
	streamer := source.NewStreamer(source.StreamerConfig{
		Device:         cfg.Device.Port,
		Patterns:       cfg.Device.SearchPatterns(),
		Client:         fpga.New(cfg.Device.ClientOptions(logger)),
		SendStart:      cfg.Device.SendStart,
		Lock:           cfg.Device.Lock,
		ReconnectDelay: cfg.Device.ReconnectDelay(),
		StallTimeout:   cfg.Device.StallTimeout(),
		Logger:         logger,
	}, ring)
	return source.NewHardware(ring, streamer, nil), streamer
}

func openSinks(svc config.Service) (drawlog.Sink, error) {
	var sinks drawlog.Fanout
	if svc.DrawLog != "" {
		fs, err := drawlog.OpenFile(svc.DrawLog)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if svc.HistoryDB != "" {
		store, err := drawlog.OpenStore(svc.HistoryDB)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, store)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

func runServe(ctx context.Context, live io.Writer, cfg *config.Config, logger *zap.Logger) error {
	provider, streamer := buildProvider(cfg, logger)

	sink, err := openSinks(cfg.Service)
	if err != nil {
		return err
	}
	if sink != nil {
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("close draw sinks", zap.Error(err))
			}
		}()
	}

	showLive := cfg.Service.LiveStats && isTerminalWriter(live)
	accessPath, accessOn := accessLogTarget(cfg.Service, showLive)
	if cfg.Service.AccessLogs && !accessOn {
		logger.Info("access log disabled while live stats are shown; set service.access_log to keep it")
	}
	access, err := logging.NewAccessLogger(accessPath, accessOn)
	if err != nil {
		return fmt.Errorf("open access log: %w", err)
	}
	defer func() { _ = access.Sync() }()

	tracker := service.NewTracker(time.Now())
	srv := service.New(service.Options{
		Provider:     provider,
		Sink:         sink,
		Tracker:      tracker,
		Logger:       logger,
		AccessLogger: access,
	})

	g, gctx := errgroup.WithContext(ctx)
	addr := net.JoinHostPort(cfg.Service.Host, strconv.Itoa(cfg.Service.Port))
	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})

	if streamer != nil {
		g.Go(func() error {
			return ignoreCanceled(streamer.Run(gctx))
		})
		if cfg.Device.Hotplug {
			hp := fpga.NewHotplug(cfg.Device.SearchPatterns(), logger, func(ev fpga.HotplugEvent) {
				if ev.Action == "add" {
					streamer.Notify()
				}
			})
			if err := hp.Start(gctx); err != nil {
				logger.Warn("hotplug monitor unavailable", zap.Error(err))
			} else {
				defer hp.Stop()
			}
		}
	}

	if showLive {
		display := service.NewDisplay(live, tracker, provider)
		g.Go(func() error {
			return display.Run(gctx)
		})
	}

	logger.Info("rng service starting",
		zap.String("address", addr),
		zap.String("mode", string(provider.Status().Mode)))
	return ignoreCanceled(g.Wait())
}

// accessLogTarget keeps access lines off the terminal the live table is
// redrawn on: without a log file they are dropped while it is shown.
func accessLogTarget(svc config.Service, liveTable bool) (path string, enabled bool) {
	if liveTable && svc.AccessLog == "" {
		return "", false
	}
	return svc.AccessLog, svc.AccessLogs
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && logging.IsTerminal(f)
}
