package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thiagojm/fpga_rng_linux/fpga"
)

func newDeviceCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newListCommand(ctx),
		newDetectCommand(ctx),
		newProbeCommand(ctx),
		newToggleCommand(ctx, true),
		newToggleCommand(ctx, false),
		newReadCommand(ctx),
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidate serial devices and USB bridges",
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns := ctx.configValue().Device.SearchPatterns()
			if all {
				patterns = fpga.ExtendedPatterns
			}
			devices, err := fpga.Enumerate(patterns)
			if err != nil {
				return fmt.Errorf("enumerate devices: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No candidate serial devices found")
				fmt.Fprintf(out, "Searched: %s\n", strings.Join(patterns, ", "))
			} else {
				rows := make([][]string, 0, len(devices))
				for _, d := range devices {
					rows = append(rows, []string{d.Path, yesNo(d.IsUSB), d.VID, d.PID, d.SerialNumber, d.Product})
				}
				fmt.Fprintln(out, renderTable(textColumns("Device", "USB", "VID", "PID", "Serial", "Product"), rows))
			}

			bridges, err := fpga.ScanUSB()
			if err != nil {
				ctx.log().Warn("usb scan failed", zap.Error(err))
				return nil
			}
			if len(bridges) > 0 {
				rows := make([][]string, 0, len(bridges))
				for _, b := range bridges {
					rows = append(rows, []string{
						fmt.Sprintf("%04x:%04x", b.VID, b.PID),
						b.Name,
						fmt.Sprint(b.Bus),
						fmt.Sprint(b.Addr),
					})
				}
				fmt.Fprintln(out, renderTable([]column{col("ID"), col("Bridge"), num("Bus"), num("Addr")}, rows))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include CDC-ACM and Silicon Labs device patterns")
	return cmd
}

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var keepStreaming bool
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Find the first working FPGA board",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := fpga.DefaultDetectOptions
			if keepStreaming {
				opts = fpga.DetectOptions{AlreadyStreamingOK: true}
			}
			path, lock, err := ctx.client().AutoDetectLocked(cmd.Context(), ctx.configValue().Device.SearchPatterns(), opts)
			if err != nil {
				return err
			}
			_ = lock.Unlock()
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepStreaming, "keep-streaming", false, "Return a streaming board without stopping it")
	return cmd
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [device...]",
		Short: "Classify boards as responsive, streaming or unresponsive",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices := args
			if len(devices) == 0 {
				var err error
				devices, err = fpga.ListCandidates(ctx.configValue().Device.SearchPatterns())
				if err != nil {
					return err
				}
			}
			if len(devices) == 0 {
				return fpga.ErrNoDevice
			}
			client := ctx.client()
			rows := make([][]string, 0, len(devices))
			for _, device := range devices {
				status, err := probeLocked(cmd.Context(), client, device)
				note := ""
				if err != nil {
					note = err.Error()
				}
				rows = append(rows, []string{device, status.String(), note})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(textColumns("Device", "Status", "Error"), rows))
			return nil
		},
	}
}

func probeLocked(ctx context.Context, client *fpga.Client, device string) (fpga.Status, error) {
	lock, err := fpga.LockDevice(device)
	if err != nil {
		return fpga.StatusUnresponsive, err
	}
	defer func() { _ = lock.Unlock() }()
	return client.Probe(ctx, device)
}

func newToggleCommand(ctx *commandContext, start bool) *cobra.Command {
	var device string
	var noVerify bool
	use, short := "stop", "Stop the board's random stream"
	if start {
		use, short = "start", "Start the board's random stream"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			path, lock, err := ctx.resolveDevice(cmd.Context(), client, device)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			switch {
			case noVerify:
				err = client.SendSignal(path)
			case start:
				err = client.StartVerified(cmd.Context(), path)
			default:
				err = client.StopVerified(cmd.Context(), path)
			}
			if err != nil {
				return fmt.Errorf("%s %s: %w", use, path, err)
			}
			state := "stopped"
			if start {
				state = "streaming"
			}
			if noVerify {
				state = "signalled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, state)
			return nil
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "Serial device path (default: configured port or auto-detect)")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Send the toggle byte without checking the stream state")
	return cmd
}

func newReadCommand(ctx *commandContext) *cobra.Command {
	var device string
	var size int
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read raw bytes from the board and print them as hex",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			path, lock, err := ctx.resolveDevice(cmd.Context(), client, device)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()
			out := cmd.OutOrStdout()
			return withStream(cmd.Context(), client, path, ctx.log(), func() error {
				if interval <= 0 {
					data, err := client.ReadBytes(cmd.Context(), path, size, 0, nil)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "read %s from %s\n", humanize.Bytes(uint64(len(data))), path)
					fmt.Fprintln(out, hex.EncodeToString(data))
					return nil
				}

				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					data, err := client.ReadBytes(cmd.Context(), path, size, 0, nil)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s  %d bytes  %s\n", time.Now().Format(time.RFC3339), len(data), hex.EncodeToString(data))
					select {
					case <-cmd.Context().Done():
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "Serial device path (default: configured port or auto-detect)")
	cmd.Flags().IntVarP(&size, "bytes", "n", 128, "Number of bytes per read")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Repeat reads at this interval until interrupted (0 reads once)")
	return cmd
}

// withStream starts the board when it is idle and stops it again after fn
// returns. A board that was already streaming is left on. The caller holds
// the device lock.
func withStream(ctx context.Context, client *fpga.Client, path string, logger *zap.Logger, fn func() error) error {
	data, err := client.ReadData(ctx, path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		if err := client.StartVerified(ctx, path); err != nil {
			return fmt.Errorf("start %s: %w", path, err)
		}
		defer func() {
			if err := client.Stop(path); err != nil {
				logger.Warn("failed to send stop signal", zap.String("device", path), zap.Error(err))
			}
		}()
	} else {
		logger.Info("device already streaming", zap.String("device", path))
	}

	err = fn()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
