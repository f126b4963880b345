// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"github.com/ffutop/rtu-slave/modbus"
)

// Quantity limits per request.
const (
	maxReadBits       = 2000
	maxReadRegisters  = 125
	maxWriteBits      = 1968
	maxWriteRegisters = 123
	maxRWWriteRegs    = 121
)

const (
	coilOn  = 0xFF00
	coilOff = 0x0000
)

type readFunc func(address, quantity uint16) ([]byte, error)

// readRange serves the four read functions. Checks run in order: start
// outside the table, quantity outside [1, limit], range past the end.
func readRange(data []byte, capacity int, limit uint16, read readFunc) outcome {
	if len(data) != 4 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])

	if int(address) >= capacity {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	if quantity < 1 || quantity > limit {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	values, err := read(address, quantity)
	if err != nil {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	if len(values) > 0xFF {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}

	payload := make([]byte, 1+len(values))
	payload[0] = byte(len(values))
	copy(payload[1:], values)
	return ok(payload)
}

func (s *Slave) handleReadCoils(data []byte) outcome {
	return readRange(data, s.model.Capacity().Coils, maxReadBits, s.model.ReadCoils)
}

func (s *Slave) handleReadDiscreteInputs(data []byte) outcome {
	return readRange(data, s.model.Capacity().DiscreteInputs, maxReadBits, s.model.ReadDiscreteInputs)
}

func (s *Slave) handleReadHoldingRegisters(data []byte) outcome {
	return readRange(data, s.model.Capacity().HoldingRegisters, maxReadRegisters, s.model.ReadHoldingRegisters)
}

func (s *Slave) handleReadInputRegisters(data []byte) outcome {
	return readRange(data, s.model.Capacity().InputRegisters, maxReadRegisters, s.model.ReadInputRegisters)
}

func (s *Slave) handleWriteSingleCoil(data []byte) outcome {
	if len(data) != 4 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if int(address) >= s.model.Capacity().Coils {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	if value != coilOn && value != coilOff {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	if err := s.model.WriteSingleCoil(address, value == coilOn); err != nil {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	return ok(echo(data[:4]))
}

func (s *Slave) handleWriteSingleRegister(data []byte) outcome {
	if len(data) != 4 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if err := s.model.WriteSingleRegister(address, value); err != nil {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	return ok(echo(data[:4]))
}

// handleWriteMultipleCoils follows the read order and checks the byte count
// last, so a request past the end reports 02 even with a bad count.
func (s *Slave) handleWriteMultipleCoils(data []byte) outcome {
	if len(data) < 5 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	byteCount := int(data[4])

	capacity := s.model.Capacity().Coils
	if int(address) >= capacity {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	if quantity < 1 || quantity > maxWriteBits {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	if int(address)+int(quantity) > capacity {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	if byteCount != (int(quantity)+7)/8 || len(data)-5 < byteCount {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	if err := s.model.WriteMultipleCoils(address, quantity, data[5:5+byteCount]); err != nil {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	return ok(echo(data[:4]))
}

func (s *Slave) handleWriteMultipleRegisters(data []byte) outcome {
	if len(data) < 5 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	byteCount := int(data[4])

	capacity := s.model.Capacity().HoldingRegisters
	if int(address) >= capacity {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	if quantity < 1 || quantity > maxWriteRegisters {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	if int(address)+int(quantity) > capacity {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	if byteCount != int(quantity)*2 || len(data)-5 < byteCount {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	if err := s.model.WriteMultipleRegisters(address, quantity, data[5:5+byteCount]); err != nil {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	return ok(echo(data[:4]))
}

func (s *Slave) handleMaskWriteRegister(data []byte) outcome {
	if len(data) != 6 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	andMask := binary.BigEndian.Uint16(data[2:4])
	orMask := binary.BigEndian.Uint16(data[4:6])

	if err := s.model.MaskWriteRegister(address, andMask, orMask); err != nil {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	return ok(echo(data))
}

func (s *Slave) handleReadWriteMultipleRegisters(data []byte) outcome {
	if len(data) < 9 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	readAddress := binary.BigEndian.Uint16(data[0:2])
	readQuantity := binary.BigEndian.Uint16(data[2:4])
	writeAddress := binary.BigEndian.Uint16(data[4:6])
	writeQuantity := binary.BigEndian.Uint16(data[6:8])
	byteCount := int(data[8])

	capacity := s.model.Capacity().HoldingRegisters
	if int(readAddress) >= capacity || int(writeAddress) >= capacity {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	if readQuantity < 1 || readQuantity > maxReadRegisters ||
		writeQuantity < 1 || writeQuantity > maxRWWriteRegs {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	if int(readAddress)+int(readQuantity) > capacity || int(writeAddress)+int(writeQuantity) > capacity {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}
	if byteCount != int(writeQuantity)*2 || len(data)-9 < byteCount {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	values, err := s.model.ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity, data[9:9+byteCount])
	if err != nil {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}

	payload := make([]byte, 1+len(values))
	payload[0] = byte(len(values))
	copy(payload[1:], values)
	return ok(payload)
}

// echo copies request fields into a response; request data aliases the
// receive buffer.
func echo(fields []byte) []byte {
	return append([]byte(nil), fields...)
}
