// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "sync"

// State is the receive state of an Assembler.
type State int

const (
	Idle State = iota
	Accumulating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// UART is the transmit side of the serial peripheral. While transmission is
// enabled the peripheral calls OnTxReady each time it can accept a byte.
// TransmitByte reports with first that b opens a frame; bytes the peripheral
// still holds from an earlier frame are stale.
type UART interface {
	EnableTx()
	DisableTx()
	TransmitByte(b byte, first bool)
}

// Assembler delimits RTU frames on a raw byte stream by line silence and
// gates outbound frames until the bus is quiet.
//
// OnByteReceived, OnTxReady, OnMidTimeout and OnEndTimeout are the interrupt
// entry points. They run to completion under mu, which stands in for the
// interrupt mask. Read and Write are the foreground side; neither blocks.
type Assembler struct {
	mu      sync.Mutex
	state   State
	silence *SilenceTimer
	uart    UART

	rx    [BufferSize]byte
	rxLen int

	pending Mailbox

	tx      [BufferSize]byte
	txLen   int
	txHead  int
	txArmed bool
}

// NewAssembler returns an Assembler in the Idle state, driving timer and uart.
func NewAssembler(timer Timer, uart UART) *Assembler {
	return &Assembler{
		silence: NewSilenceTimer(timer),
		uart:    uart,
	}
}

// OnByteReceived appends b to the frame being received. If 1.5 character
// times of silence preceded b, the partial frame is dropped first and b
// starts a new one. Bytes beyond BufferSize are discarded.
func (a *Assembler) OnByteReceived(b byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.silence.MidFired() {
		a.rxLen = 0
	}
	a.silence.OnByteEvent()
	if a.rxLen < len(a.rx) {
		a.rx[a.rxLen] = b
		a.rxLen++
	}
	a.state = Accumulating
}

// OnMidTimeout handles the 1.5 character compare event.
func (a *Assembler) OnMidTimeout() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.silence.OnMidTimeout()
}

// OnEndTimeout handles the 3.5 character compare event: the received frame,
// if any, is published and a deferred transmission is started.
func (a *Assembler) OnEndTimeout() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.silence.OnEndTimeout() {
		return
	}
	if a.txLen > 0 && !a.txArmed {
		a.txArmed = true
		a.uart.EnableTx()
	}
	if a.rxLen > 0 {
		a.pending.Publish(a.rx[:a.rxLen])
		a.rxLen = 0
	}
	a.state = Idle
}

// OnTxReady clocks out the next byte of the transmit buffer.
func (a *Assembler) OnTxReady() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.txArmed || a.txHead >= a.txLen {
		a.stopTx()
		return
	}
	a.silence.OnByteEvent()
	a.uart.TransmitByte(a.tx[a.txHead], a.txHead == 0)
	a.txHead++
	if a.txHead == a.txLen {
		a.stopTx()
	}
}

func (a *Assembler) stopTx() {
	a.txLen = 0
	a.txHead = 0
	a.txArmed = false
	a.uart.DisableTx()
}

// Read copies the latest complete frame into p and returns its length, or 0
// if no frame is pending.
func (a *Assembler) Read(p []byte) int {
	return a.pending.Take(p)
}

// Write queues p for transmission, replacing anything not yet sent, and
// returns the number of bytes queued. Transmission starts at once if the bus
// is silent, otherwise at the next end-of-frame timeout.
func (a *Assembler) Write(p []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := copy(a.tx[:], p)
	if n == 0 {
		return 0
	}
	a.txLen = n
	a.txHead = 0
	if a.silence.EndFired() {
		a.txArmed = true
		a.uart.EnableTx()
	}
	return n
}

// State returns the current receive state.
func (a *Assembler) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}
