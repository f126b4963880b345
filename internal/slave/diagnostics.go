// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"go.uber.org/atomic"

	"github.com/ffutop/rtu-slave/modbus"
)

// Diagnostics sub-functions.
const (
	diagReturnQueryData         = 0x0000
	diagRestartCommunications   = 0x0001
	diagClearCounters           = 0x000A
	diagBusMessageCount         = 0x000B
	diagBusCommErrorCount       = 0x000C
	diagBusExceptionErrorCount  = 0x000D
	diagServerMessageCount      = 0x000E
	diagRestartClearCommLogFlag = 0xFF00
)

const runIndicatorOn = 0xFF

// counters are readable from any goroutine while the poll cycle updates them.
type counters struct {
	busMessages    atomic.Uint64
	crcErrors      atomic.Uint64
	exceptions     atomic.Uint64
	serverMessages atomic.Uint64
	commEvents     atomic.Uint64
}

func (c *counters) reset() {
	c.busMessages.Store(0)
	c.crcErrors.Store(0)
	c.exceptions.Store(0)
	c.serverMessages.Store(0)
	c.commEvents.Store(0)
}

// Stats is a snapshot of the diagnostic counters.
type Stats struct {
	BusMessages    uint64 // frames of acceptable length seen on the bus
	CRCErrors      uint64 // frames for this station that failed the CRC check
	Exceptions     uint64 // exception responses sent
	ServerMessages uint64 // frames for this station that passed the CRC check
	CommEvents     uint64 // successfully completed requests
}

// Stats returns the current counter values.
func (s *Slave) Stats() Stats {
	return Stats{
		BusMessages:    s.counters.busMessages.Load(),
		CRCErrors:      s.counters.crcErrors.Load(),
		Exceptions:     s.counters.exceptions.Load(),
		ServerMessages: s.counters.serverMessages.Load(),
		CommEvents:     s.counters.commEvents.Load(),
	}
}

func (s *Slave) handleDiagnostics(data []byte) outcome {
	if len(data) < 2 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	sub := binary.BigEndian.Uint16(data[0:2])

	var counter *atomic.Uint64
	switch sub {
	case diagReturnQueryData:
		return ok(echo(data))
	case diagRestartCommunications:
		if len(data) != 4 {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		if v := binary.BigEndian.Uint16(data[2:4]); v != 0 && v != diagRestartClearCommLogFlag {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		s.counters.reset()
		return ok(echo(data))
	case diagClearCounters:
		if !zeroDataField(data) {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		s.counters.reset()
		return ok(echo(data))
	case diagBusMessageCount:
		counter = &s.counters.busMessages
	case diagBusCommErrorCount:
		counter = &s.counters.crcErrors
	case diagBusExceptionErrorCount:
		counter = &s.counters.exceptions
	case diagServerMessageCount:
		counter = &s.counters.serverMessages
	default:
		return fail(modbus.ExceptionCodeIllegalFunction)
	}

	if !zeroDataField(data) {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], sub)
	binary.BigEndian.PutUint16(payload[2:4], uint16(counter.Load()))
	return ok(payload)
}

func zeroDataField(data []byte) bool {
	return len(data) == 4 && data[2] == 0 && data[3] == 0
}

func (s *Slave) handleGetCommEventCounter(data []byte) outcome {
	if len(data) != 0 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	payload := make([]byte, 4)
	// status word 0x0000: no program command in progress
	binary.BigEndian.PutUint16(payload[2:4], uint16(s.counters.commEvents.Load()))
	return ok(payload)
}

func (s *Slave) handleReportServerID(data []byte) outcome {
	if len(data) != 0 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	id := s.serverID
	if len(id) > 250 {
		id = id[:250]
	}
	payload := make([]byte, 0, 2+len(id))
	payload = append(payload, byte(len(id)+1))
	payload = append(payload, id...)
	payload = append(payload, runIndicatorOn)
	return ok(payload)
}
