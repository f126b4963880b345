// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"go.uber.org/atomic"

	mbrtu "github.com/ffutop/rtu-slave/modbus/rtu"
)

// Interrupts are the event entry points of a frame assembler.
type Interrupts interface {
	OnByteReceived(b byte)
	OnTxReady()
	OnMidTimeout()
	OnEndTimeout()
}

// Peripheral emulates a UART with a silence timer on top of a byte stream.
// It implements mbrtu.UART; Clock returns the matching mbrtu.Timer.
//
// Received bytes are delivered one by one from a reader goroutine. While
// transmission is enabled a writer goroutine keeps asking for the next byte
// and writes the collected frame to the port in one go, so the bytes leave
// without inter-character gaps.
type Peripheral struct {
	port  io.ReadWriteCloser
	clock *Clock
	isr   Interrupts

	txOn    atomic.Bool
	kick    chan struct{}
	txFrame []byte
}

// Option configures a Peripheral.
type Option func(*thresholds)

type thresholds struct {
	mid, end time.Duration
}

// WithSilenceFloor raises the silence thresholds to at least minMid and
// minEnd. The host sees received bytes in bursts separated by driver and
// USB latency, which at higher baud rates is longer than 1.5 character times.
// Zero leaves a threshold unchanged.
func WithSilenceFloor(minMid, minEnd time.Duration) Option {
	return func(t *thresholds) {
		t.mid = max(t.mid, minMid)
		t.end = max(t.end, minEnd)
		if t.end <= t.mid {
			t.end = t.mid * 7 / 3
		}
	}
}

// NewPeripheral wraps port. mid and end are the silence thresholds.
func NewPeripheral(port io.ReadWriteCloser, mid, end time.Duration, opts ...Option) *Peripheral {
	t := thresholds{mid: mid, end: end}
	for _, opt := range opts {
		opt(&t)
	}
	p := &Peripheral{
		port:    port,
		kick:    make(chan struct{}, 1),
		txFrame: make([]byte, 0, mbrtu.BufferSize),
	}
	p.clock = NewClock(t.mid, t.end, p.midTimeout, p.endTimeout)
	return p
}

// Clock returns the peripheral's silence timer.
func (p *Peripheral) Clock() *Clock {
	return p.clock
}

// EnableTx starts the transmit loop.
func (p *Peripheral) EnableTx() {
	p.txOn.Store(true)
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// DisableTx stops the transmit loop after the current byte.
func (p *Peripheral) DisableTx() {
	p.txOn.Store(false)
}

// TransmitByte queues b on the outgoing frame. It is only called from
// OnTxReady, which runs on the transmit goroutine. A first byte discards
// whatever was collected for a frame that has since been replaced.
func (p *Peripheral) TransmitByte(b byte, first bool) {
	if first {
		p.txFrame = p.txFrame[:0]
	}
	p.txFrame = append(p.txFrame, b)
}

func (p *Peripheral) midTimeout() { p.isr.OnMidTimeout() }
func (p *Peripheral) endTimeout() { p.isr.OnEndTimeout() }

// Run delivers port events to isr until ctx is cancelled or the port fails.
// The port is closed on return.
func (p *Peripheral) Run(ctx context.Context, isr Interrupts) error {
	p.isr = isr

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer p.clock.Stop()

	go func() {
		<-ctx.Done()
		p.port.Close()
	}()

	txDone := make(chan struct{})
	go func() {
		defer close(txDone)
		p.txLoop(ctx)
	}()

	err := p.rxLoop(ctx)
	cancel()
	<-txDone
	return err
}

func (p *Peripheral) rxLoop(ctx context.Context) error {
	buf := make([]byte, mbrtu.BufferSize)
	for {
		n, err := p.port.Read(buf)
		for _, b := range buf[:n] {
			p.isr.OnByteReceived(b)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) ||
			errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
			return err
		}
		// read timeouts surface as errors on some drivers
		slog.Debug("Serial read", "err", err)
	}
}

func (p *Peripheral) txLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
		}

		p.txFrame = p.txFrame[:0]
		for p.txOn.Load() {
			p.isr.OnTxReady()
		}
		if len(p.txFrame) == 0 {
			continue
		}
		if _, err := p.port.Write(p.txFrame); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Failed to write response", "err", err)
		}
		// silence is measured from the end of the write
		p.clock.Restart()
	}
}
