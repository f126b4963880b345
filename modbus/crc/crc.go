// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the CRC-16/MODBUS checksum (poly 0xA001 reflected,
// seed 0xFFFF) in table-driven and bitwise form.
package crc

const (
	seed       = 0xFFFF
	polynomial = 0xA001
)

var table = makeTable()

func makeTable() (t [256]uint16) {
	for i := range t {
		t[i] = bitwiseStep(uint16(i))
	}
	return
}

// bitwiseStep runs the eight shift/xor rounds over crc.
func bitwiseStep(crc uint16) uint16 {
	for i := 0; i < 8; i++ {
		if crc&1 != 0 {
			crc = crc>>1 ^ polynomial
		} else {
			crc >>= 1
		}
	}
	return crc
}

// CRC is a streaming CRC-16/MODBUS accumulator.
type CRC struct {
	value uint16
}

func (crc *CRC) Reset() *CRC {
	crc.value = seed
	return crc
}

func (crc *CRC) PushBytes(bs []byte) *CRC {
	v := crc.value
	for _, b := range bs {
		v = v>>8 ^ table[byte(v)^b]
	}
	crc.value = v
	return crc
}

func (crc *CRC) Value() uint16 {
	return crc.value
}

// Checksum returns the table-driven CRC of data. An empty range yields 0xFFFF.
func Checksum(data []byte) uint16 {
	var c CRC
	return c.Reset().PushBytes(data).Value()
}

// Bitwise returns the CRC of data computed one bit at a time.
func Bitwise(data []byte) uint16 {
	crc := uint16(seed)
	for _, b := range data {
		crc = bitwiseStep(crc ^ uint16(b))
	}
	return crc
}
