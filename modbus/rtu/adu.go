// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"

	"github.com/ffutop/rtu-slave/modbus"
	"github.com/ffutop/rtu-slave/modbus/crc"
)

var (
	ErrShortFrame = errors.New("modbus: frame shorter than minimum")
	ErrBadCRC     = errors.New("modbus: crc mismatch")
)

// ApplicationDataUnit is a decoded RTU frame.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode checks length and CRC of raw and splits it into address and PDU.
// The returned PDU data aliases raw.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		return nil, fmt.Errorf("%w: length '%v', minimum '%v'", ErrShortFrame, length, MinSize)
	}
	if err := VerifyCRC(raw); err != nil {
		return nil, err
	}
	return &ApplicationDataUnit{
		SlaveID: raw[0],
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: raw[1],
			Data:         raw[2 : length-2],
		},
	}, nil
}

// VerifyCRC compares the trailing checksum of raw (low byte first) with the
// CRC of the bytes preceding it.
func VerifyCRC(raw []byte) error {
	length := len(raw)
	if length < 2 {
		return ErrShortFrame
	}
	want := crc.Checksum(raw[:length-2])
	got := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if got != want {
		return fmt.Errorf("%w: frame '%#04x', computed '%#04x'", ErrBadCRC, got, want)
	}
	return nil
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	AppendCRC(raw[:length-2])
	return
}

// AppendCRC appends the checksum of frame, low byte first.
func AppendCRC(frame []byte) []byte {
	checksum := crc.Checksum(frame)
	return append(frame, byte(checksum), byte(checksum>>8))
}
