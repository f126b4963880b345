// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol vocabulary shared by the RTU framing
// layer and the slave: function codes, exception codes and the PDU type.
package modbus

import "fmt"

// Function Codes
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeDiagnostics            = 0x08
	FuncCodeGetCommEventCounter    = 0x0B
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10
	FuncCodeReportServerID         = 0x11
	FuncCodeMaskWriteRegister      = 0x16

	FuncCodeReadWriteMultipleRegisters = 0x17
	FuncCodeEncapsulatedInterface      = 0x2B
)

// MEITypeReadDeviceIdentification selects Read Device Identification within
// the encapsulated interface transport.
const MEITypeReadDeviceIdentification = 0x0E

// ExceptionFlag is OR'ed into the function code of an exception response.
const ExceptionFlag = 0x80

// ExceptionCode is the single data byte of an exception response.
type ExceptionCode byte

const (
	ExceptionCodeIllegalFunction    ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue   ExceptionCode = 0x03
)

func (e ExceptionCode) Error() string {
	switch e {
	case ExceptionCodeIllegalFunction:
		return "modbus: illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "modbus: illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "modbus: illegal data value"
	}
	return fmt.Sprintf("modbus: exception '%d'", byte(e))
}

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// Exception builds the exception PDU answering funcCode.
func Exception(funcCode byte, code ExceptionCode) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: funcCode | ExceptionFlag,
		Data:         []byte{byte(code)},
	}
}
