// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/hex"
	"log/slog"

	"github.com/ffutop/rtu-slave/internal/slave/model"
	"github.com/ffutop/rtu-slave/modbus"
	"github.com/ffutop/rtu-slave/modbus/rtu"
)

// outcome is the result of a function handler: either a response payload or
// an exception code.
type outcome struct {
	payload   []byte
	exception modbus.ExceptionCode
}

func ok(payload []byte) outcome { return outcome{payload: payload} }

func fail(code modbus.ExceptionCode) outcome { return outcome{exception: code} }

type handler func(s *Slave, data []byte) outcome

// Option configures a Slave.
type Option func(*Slave)

// WithServerID sets the payload of Report Server ID.
func WithServerID(id []byte) Option {
	return func(s *Slave) {
		s.serverID = append([]byte(nil), id...)
	}
}

// WithMonitor installs a hook that sees every frame of acceptable length, as
// hex, before address filtering.
func WithMonitor(hook func(frame string)) Option {
	return func(s *Slave) {
		s.monitor = hook
	}
}

// Slave implements the Modbus protocol logic on top of a DataModel.
type Slave struct {
	address  byte
	model    *model.DataModel
	handlers map[byte]handler
	serverID []byte
	identity [basicObjects][]byte
	monitor  func(string)
	counters counters
}

// New creates a Slave answering at address.
func New(address byte, m *model.DataModel, opts ...Option) *Slave {
	s := &Slave{
		address: address,
		model:   m,
		handlers: map[byte]handler{
			modbus.FuncCodeReadCoils:              (*Slave).handleReadCoils,
			modbus.FuncCodeReadDiscreteInputs:     (*Slave).handleReadDiscreteInputs,
			modbus.FuncCodeReadHoldingRegisters:   (*Slave).handleReadHoldingRegisters,
			modbus.FuncCodeReadInputRegisters:     (*Slave).handleReadInputRegisters,
			modbus.FuncCodeWriteSingleCoil:        (*Slave).handleWriteSingleCoil,
			modbus.FuncCodeWriteSingleRegister:    (*Slave).handleWriteSingleRegister,
			modbus.FuncCodeDiagnostics:            (*Slave).handleDiagnostics,
			modbus.FuncCodeGetCommEventCounter:    (*Slave).handleGetCommEventCounter,
			modbus.FuncCodeWriteMultipleCoils:     (*Slave).handleWriteMultipleCoils,
			modbus.FuncCodeWriteMultipleRegisters: (*Slave).handleWriteMultipleRegisters,
			modbus.FuncCodeReportServerID:         (*Slave).handleReportServerID,
			modbus.FuncCodeMaskWriteRegister:      (*Slave).handleMaskWriteRegister,

			modbus.FuncCodeReadWriteMultipleRegisters: (*Slave).handleReadWriteMultipleRegisters,
			modbus.FuncCodeEncapsulatedInterface:      (*Slave).handleEncapsulatedInterface,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Address returns the station address the slave answers to.
func (s *Slave) Address() byte {
	return s.address
}

// HandleFrame validates one received frame and returns the response frame.
// It returns false when the frame must be dropped without a reply: too short,
// addressed to another station, or failing the CRC check.
func (s *Slave) HandleFrame(frame []byte) ([]byte, bool) {
	if len(frame) < rtu.MinSize {
		slog.Debug("Dropped short frame", "length", len(frame))
		return nil, false
	}
	s.counters.busMessages.Inc()
	if s.monitor != nil {
		s.monitor(hex.EncodeToString(frame))
	}

	if frame[0] != s.address {
		return nil, false
	}
	adu, err := rtu.Decode(frame)
	if err != nil {
		s.counters.crcErrors.Inc()
		slog.Debug("Dropped frame", "frame", hex.EncodeToString(frame), "err", err)
		return nil, false
	}
	s.counters.serverMessages.Inc()

	resp := s.Process(adu.Pdu)
	raw, err := (&rtu.ApplicationDataUnit{SlaveID: s.address, Pdu: resp}).Encode()
	if err != nil {
		slog.Error("Failed to encode response", "func", adu.Pdu.FunctionCode, "err", err)
		return nil, false
	}
	return raw, true
}

// Process executes the Modbus Function Code against the memory model.
func (s *Slave) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	h, found := s.handlers[req.FunctionCode]
	if !found {
		s.counters.exceptions.Inc()
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}

	out := h(s, req.Data)
	if out.exception != 0 {
		s.counters.exceptions.Inc()
		slog.Debug("Exception response", "func", req.FunctionCode, "code", byte(out.exception))
		return modbus.Exception(req.FunctionCode, out.exception)
	}
	if req.FunctionCode != modbus.FuncCodeGetCommEventCounter {
		s.counters.commEvents.Inc()
	}
	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         out.payload,
	}
}
