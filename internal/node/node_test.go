// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package node

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"github.com/ffutop/rtu-slave/internal/slave"
	"github.com/ffutop/rtu-slave/internal/slave/model"
	"github.com/ffutop/rtu-slave/modbus/rtu"
)

const (
	charTicks = 11 // 8E1
	midTicks  = 16
	endTicks  = 38
)

// wire is a simulated RS485 line: it plays the silence timer and the UART
// for a real Assembler, counting time in bit ticks.
type wire struct {
	asm *rtu.Assembler

	now, start int
	running    bool

	txEnabled bool
	nextTx    int
	sent      []byte
}

func newWire() *wire {
	w := &wire{}
	w.asm = rtu.NewAssembler(w, w)
	return w
}

func (w *wire) Restart() { w.start, w.running = w.now, true }

func (w *wire) Reached(ch rtu.Channel) bool {
	if ch == rtu.ChannelMid {
		return w.now-w.start >= midTicks
	}
	return w.now-w.start >= endTicks
}

func (w *wire) EnableTx() { w.txEnabled = true }
func (w *wire) DisableTx() { w.txEnabled = false }
func (w *wire) TransmitByte(b byte, first bool) { w.sent = append(w.sent, b) }

func (w *wire) idle(ticks int) {
	for i := 0; i < ticks; i++ {
		if w.txEnabled && w.now >= w.nextTx {
			w.nextTx = w.now + charTicks
			w.asm.OnTxReady()
		}
		w.now++
		if !w.running {
			continue
		}
		switch w.now - w.start {
		case midTicks:
			w.asm.OnMidTimeout()
		case endTicks:
			w.running = false
			w.asm.OnEndTimeout()
		}
	}
}

func (w *wire) receive(frame []byte) {
	for i, b := range frame {
		if i > 0 {
			w.idle(charTicks)
		}
		w.asm.OnByteReceived(b)
	}
	w.idle(endTicks)
}

// station is a goburrow RTU client handler whose transport is the simulated
// wire in front of a Node.
type station struct {
	*modbus.RTUClientHandler
	wire *wire
	node *Node
}

func (s *station) Send(req []byte) ([]byte, error) {
	s.wire.sent = nil
	s.wire.receive(req)
	s.node.Poll()
	s.wire.idle(rtu.BufferSize * charTicks)
	if len(s.wire.sent) == 0 {
		return nil, errors.New("no response")
	}
	return append([]byte(nil), s.wire.sent...), nil
}

func newStation(t *testing.T, slaveID byte) (*station, *model.DataModel) {
	t.Helper()
	m, err := model.NewDataModel(model.DefaultCapacity)
	if err != nil {
		t.Fatal(err)
	}
	w := newWire()
	handler := modbus.NewRTUClientHandler("")
	handler.SlaveId = slaveID
	return &station{
		RTUClientHandler: handler,
		wire:             w,
		node:             NewNode("test", w.asm, slave.New(0x11, m), time.Millisecond),
	}, m
}

func TestEndToEndReadHoldingRegisters(t *testing.T) {
	st, m := newStation(t, 0x11)
	m.WriteMultipleRegisters(0, 2, []byte{0x00, 0x0A, 0x00, 0x0B})

	client := modbus.NewClient(st)
	results, err := client.ReadHoldingRegisters(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(results, []byte{0x00, 0x0A, 0x00, 0x0B}) {
		t.Fatalf("ReadHoldingRegisters() = % X", results)
	}
	want := []byte{0x11, 0x03, 0x04, 0x00, 0x0A, 0x00, 0x0B, 0x8A, 0x37}
	if !bytes.Equal(st.wire.sent, want) {
		t.Fatalf("wire = % X, want % X", st.wire.sent, want)
	}
}

func TestEndToEndException(t *testing.T) {
	st, _ := newStation(t, 0x11)
	client := modbus.NewClient(st)

	_, err := client.ReadHoldingRegisters(200, 1)
	var mbErr *modbus.ModbusError
	if !errors.As(err, &mbErr) || mbErr.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Fatalf("ReadHoldingRegisters(200, 1) error = %v", err)
	}
	if want := []byte{0x11, 0x83, 0x02, 0xC1, 0x34}; !bytes.Equal(st.wire.sent, want) {
		t.Fatalf("wire = % X, want % X", st.wire.sent, want)
	}
}

func TestEndToEndOtherStationIsSilent(t *testing.T) {
	st, _ := newStation(t, 0x12)
	client := modbus.NewClient(st)

	if _, err := client.ReadHoldingRegisters(0, 2); err == nil {
		t.Fatal("expected no response")
	}
	if len(st.wire.sent) != 0 {
		t.Fatalf("wire = % X, want nothing", st.wire.sent)
	}
}

func TestEndToEndWrites(t *testing.T) {
	st, m := newStation(t, 0x11)
	client := modbus.NewClient(st)

	if _, err := client.WriteSingleCoil(5, 0xFF00); err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x11, 0x05, 0x00, 0x05, 0xFF, 0x00, 0x9E, 0xAB}; !bytes.Equal(st.wire.sent, want) {
		t.Fatalf("wire = % X, want % X", st.wire.sent, want)
	}
	coils, _ := m.ReadCoils(5, 1)
	if coils[0] != 1 {
		t.Fatal("coil 5 not set")
	}

	if _, err := client.WriteMultipleCoils(10, 11, []byte{0xCD, 0x01}); err != nil {
		t.Fatal(err)
	}
	got, err := client.ReadCoils(10, 11)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0xCD, 0x01}) {
		t.Fatalf("ReadCoils() = % X", got)
	}

	if _, err := client.WriteMultipleRegisters(100, 2, []byte{0x12, 0x34, 0x56, 0x78}); err != nil {
		t.Fatal(err)
	}
	if _, err := client.MaskWriteRegister(100, 0x00F2, 0x0025); err != nil {
		t.Fatal(err)
	}
	got, err = client.ReadWriteMultipleRegisters(100, 2, 0, 1, []byte{0xBE, 0xEF})
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x00, 0x35, 0x56, 0x78}; !bytes.Equal(got, want) {
		t.Fatalf("ReadWriteMultipleRegisters() = % X, want % X", got, want)
	}
}

func TestEndToEndFlippedCRCIsSilent(t *testing.T) {
	st, _ := newStation(t, 0x11)
	st.wire.receive([]byte{0x11, 0x03, 0x00, 0x00, 0x00, 0x02, 0xC6, 0x9A})
	if !st.node.Poll() {
		t.Fatal("frame not drained")
	}
	st.wire.idle(100 * charTicks)
	if len(st.wire.sent) != 0 {
		t.Fatalf("wire = % X, want nothing", st.wire.sent)
	}
}

func TestPollEmpty(t *testing.T) {
	st, _ := newStation(t, 0x11)
	if st.node.Poll() {
		t.Fatal("Poll() drained a frame from an idle line")
	}
}

// countingLink is a Link that counts polls.
type countingLink struct {
	mu    sync.Mutex
	reads int
}

func (l *countingLink) Read(p []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	return 0
}

func (l *countingLink) Write(p []byte) int { return len(p) }

func (l *countingLink) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

func TestRunStopsOnCancel(t *testing.T) {
	link := &countingLink{}
	n := NewNode("test", link, slave.New(1, nil), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for link.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if link.count() < 3 {
		t.Fatalf("polled %d times", link.count())
	}
}
