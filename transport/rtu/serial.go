// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	gxserial "github.com/grid-x/serial"
	bugserial "go.bug.st/serial"

	"github.com/ffutop/rtu-slave/internal/config"
)

// OpenPort opens the bus named by cfg with the configured driver:
// "gridx" (default, RS485 capable), "bugst", or "tcp" for a serial server
// reached at host:port.
func OpenPort(ctx context.Context, cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	switch cfg.Driver {
	case "gridx", "":
		return openGridX(cfg)
	case "bugst":
		return openBugST(cfg)
	case "tcp":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("could not dial %s: %w", cfg.Device, err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}

func openGridX(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	stopBits := 1
	switch cfg.StopBits {
	case 1:
	case 2:
		stopBits = 2
	default:
		slog.Warn("Stop bits not supported by driver, using 1", "driver", "gridx", "stop_bits", cfg.StopBits)
	}

	port, err := gxserial.Open(&gxserial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: stopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
		RS485: gxserial.RS485Config{
			Enabled:            cfg.RS485,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", cfg.Device, err)
	}
	return port, nil
}

func openBugST(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	mode := &bugserial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	switch cfg.Parity {
	case "E":
		mode.Parity = bugserial.EvenParity
	case "O":
		mode.Parity = bugserial.OddParity
	default:
		mode.Parity = bugserial.NoParity
	}
	switch cfg.StopBits {
	case 1.5:
		mode.StopBits = bugserial.OnePointFiveStopBits
	case 2:
		mode.StopBits = bugserial.TwoStopBits
	default:
		mode.StopBits = bugserial.OneStopBit
	}
	if cfg.RS485 {
		slog.Warn("RS485 RTS control is only supported by the gridx driver")
	}

	port, err := bugserial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", cfg.Device, err)
	}
	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("could not set read timeout on %s: %w", cfg.Device, err)
	}
	return port, nil
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	return bugserial.GetPortsList()
}
