// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ffutop/rtu-slave/internal/config"
	"github.com/ffutop/rtu-slave/internal/monitor"
	"github.com/ffutop/rtu-slave/internal/node"
	"github.com/ffutop/rtu-slave/internal/slave"
	"github.com/ffutop/rtu-slave/modbus/rtu"
	transport "github.com/ffutop/rtu-slave/transport/rtu"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the slave station on the configured serial line",
	Long: `Open the serial line and answer Modbus RTU requests addressed to this
station until interrupted.

Examples:
  rtuslave serve --device /dev/ttyUSB0 --baud-rate 19200 --parity E --address 17
  rtuslave serve --driver tcp --device 192.168.1.50:4001 --monitor :8502`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("address", 17, "Slave address (1-247)")
	serveCmd.Flags().String("image", "", "Seed image loaded into the store at start-up")
	serveCmd.Flags().String("driver", "gridx", "Serial driver (gridx, bugst, tcp)")
	serveCmd.Flags().StringP("device", "d", "/dev/ttyUSB0", "Serial device, or host:port for the tcp driver")
	serveCmd.Flags().IntP("baud-rate", "b", 19200, "Baud rate")
	serveCmd.Flags().String("parity", "N", "Parity (N, E, O)")
	serveCmd.Flags().String("monitor", "", "Listen address of the websocket frame monitor")
	serveCmd.Flags().Duration("min-mid", 20*time.Millisecond, "Floor for the inter-character silence, 0 disables")
	serveCmd.Flags().Duration("min-end", 40*time.Millisecond, "Floor for the end-of-frame silence, 0 disables")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, err := buildStore(cfg.Slave.Store, true)
	if err != nil {
		return fmt.Errorf("failed to build store: %w", err)
	}

	mid, end, err := silenceThresholds(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hub *monitor.Hub
	if cfg.Monitor.Listen != "" {
		hub = monitor.NewHub()
	}
	s := slave.New(byte(cfg.Slave.Address), m,
		slave.WithServerID([]byte(cfg.Slave.ServerID)),
		slave.WithIdentification(
			cfg.Slave.Identification.VendorName,
			cfg.Slave.Identification.ProductCode,
			cfg.Slave.Identification.Revision),
		slave.WithMonitor(func(frame string) {
			slog.Debug("Bus frame", "frame", frame)
			if hub != nil {
				hub.Publish(frame)
			}
		}),
	)

	port, err := transport.OpenPort(ctx, cfg.Serial)
	if err != nil {
		return err
	}
	p := transport.NewPeripheral(port, mid, end,
		transport.WithSilenceFloor(cfg.Timing.MinMid, cfg.Timing.MinEnd))
	asm := rtu.NewAssembler(p.Clock(), p)
	n := node.NewNode(cfg.Serial.Device, asm, s, cfg.Slave.PollInterval)

	mid, end = p.Clock().Thresholds()
	slog.Info("Starting RTU slave",
		"address", s.Address(),
		"device", cfg.Serial.Device,
		"driver", cfg.Serial.Driver,
		"baud_rate", cfg.Serial.BaudRate,
		"parity", cfg.Serial.Parity,
		"mid", mid,
		"end", end)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			if err := fn(ctx); err != nil {
				slog.Error("Stopped with error", "component", name, "err", err)
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	run("serial", func(ctx context.Context) error { return p.Run(ctx, asm) })
	run("node", n.Run)
	if hub != nil {
		run("monitor", func(ctx context.Context) error { return hub.Serve(ctx, cfg.Monitor.Listen) })
	}

	<-ctx.Done()
	slog.Info("Shutting down...")
	wg.Wait()

	st := s.Stats()
	slog.Info("Counters",
		"bus_messages", st.BusMessages,
		"crc_errors", st.CRCErrors,
		"exceptions", st.Exceptions,
		"server_messages", st.ServerMessages,
		"comm_events", st.CommEvents)

	select {
	case err := <-errCh:
		return err
	default:
		slog.Info("Goodbye.")
		return nil
	}
}

func silenceThresholds(cfg *config.Config) (mid, end time.Duration, err error) {
	timing, err := rtu.NewCharTiming(
		rtu.LineConfig{
			DataBits: cfg.Serial.DataBits,
			Parity:   cfg.Serial.Parity,
			StopBits: cfg.Serial.StopBits,
		},
		cfg.Serial.BaudRate,
		rtu.ClockConfig{
			UARTClockHz:  cfg.Timing.UARTClockHz,
			TimerClockHz: cfg.Timing.TimerClockHz,
		},
	)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid line settings: %w", err)
	}
	slog.Debug("Character timing",
		"bits_per_char", timing.BitsPerChar,
		"prescaler", timing.Prescaler,
		"tick", timing.TickPeriod,
		"mid_ticks", timing.MidTicks,
		"end_ticks", timing.EndTicks)
	mid, end = timing.Durations(cfg.Timing.FixedAbove19200)
	return mid, end, nil
}
