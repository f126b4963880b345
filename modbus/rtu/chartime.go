// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"
	"time"
)

// Inter-character and inter-frame delays recommended above 19200 baud.
const (
	fixedMidDelay = 750 * time.Microsecond
	fixedEndDelay = 1750 * time.Microsecond
)

// LineConfig is the part of the UART setup that determines the width of one
// character on the wire.
type LineConfig struct {
	DataBits int     // 7, 8 or 9
	Parity   string  // "N", "E" or "O"
	StopBits float64 // 0.5, 1, 1.5 or 2
}

// BitsPerChar returns start + data + parity + stop bits.
func (l LineConfig) BitsPerChar() (float64, error) {
	bits := 1.0
	switch l.DataBits {
	case 7, 8, 9:
		bits += float64(l.DataBits)
	default:
		return 0, fmt.Errorf("unsupported word length: %d", l.DataBits)
	}
	switch l.Parity {
	case "N", "":
	case "E", "O":
		bits++
	default:
		return 0, fmt.Errorf("unsupported parity: %q", l.Parity)
	}
	switch l.StopBits {
	case 0.5, 1, 1.5, 2:
		bits += l.StopBits
	default:
		return 0, fmt.Errorf("unsupported stop bits: %v", l.StopBits)
	}
	return bits, nil
}

// ClockConfig carries the kernel clocks of the UART and of the silence timer.
// Zero values mean "one timer tick per bit at the configured baud rate".
type ClockConfig struct {
	UARTClockHz  uint32
	TimerClockHz uint32
}

// CharTiming is the silence timer setup derived from the line settings: the
// timer is prescaled so that one tick lasts one bit time, and the two compare
// channels sit at 1.5 and 3.5 character times.
type CharTiming struct {
	BaudRate    int
	BitsPerChar float64
	Prescaler   uint32
	TickPeriod  time.Duration
	MidTicks    uint32
	EndTicks    uint32 // also the auto-stop point
}

// NewCharTiming computes the timer setup for line at baudRate.
func NewCharTiming(line LineConfig, baudRate int, clk ClockConfig) (CharTiming, error) {
	if baudRate <= 0 {
		return CharTiming{}, fmt.Errorf("invalid baud rate: %d", baudRate)
	}
	bits, err := line.BitsPerChar()
	if err != nil {
		return CharTiming{}, err
	}

	t := CharTiming{
		BaudRate:    baudRate,
		BitsPerChar: bits,
		MidTicks:    uint32(bits * 3 / 2),
		EndTicks:    uint32(bits * 7 / 2),
	}

	if clk.UARTClockHz == 0 || clk.TimerClockHz == 0 {
		t.Prescaler = 1
		t.TickPeriod = time.Second / time.Duration(baudRate)
		return t, nil
	}

	brr := clk.UARTClockHz / uint32(baudRate)
	if brr == 0 {
		return CharTiming{}, fmt.Errorf("uart clock %d Hz too slow for %d baud", clk.UARTClockHz, baudRate)
	}
	t.Prescaler = uint32(float64(clk.TimerClockHz) / float64(clk.UARTClockHz) * float64(brr))
	if t.Prescaler == 0 {
		return CharTiming{}, fmt.Errorf("timer clock %d Hz too slow for %d baud", clk.TimerClockHz, baudRate)
	}
	t.TickPeriod = time.Duration(t.Prescaler) * time.Second / time.Duration(clk.TimerClockHz)
	return t, nil
}

// Durations converts the compare thresholds to wall-clock delays. With
// fixedAbove19200 set, baud rates above 19200 use 750us and 1750us.
func (t CharTiming) Durations(fixedAbove19200 bool) (mid, end time.Duration) {
	if fixedAbove19200 && t.BaudRate > 19200 {
		return fixedMidDelay, fixedEndDelay
	}
	return time.Duration(t.MidTicks) * t.TickPeriod, time.Duration(t.EndTicks) * t.TickPeriod
}
