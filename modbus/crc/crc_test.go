// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"math/rand"
	"testing"

	"github.com/sigurn/crc16"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestChecksumVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"Empty", nil, 0xFFFF},
		{"CheckString", []byte("123456789"), 0x4B37},
		{"ReadHoldingRequest", []byte{0x02, 0x03, 0x00, 0xB1, 0x00, 0x01}, 0x1ED4},
		{"ReadHoldingResponse", []byte{0x02, 0x03, 0x02, 0x02, 0xBC}, 0x95FC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum() = %#04x, want %#04x", got, tt.want)
			}
			if got := Bitwise(tt.data); got != tt.want {
				t.Errorf("Bitwise() = %#04x, want %#04x", got, tt.want)
			}
		})
	}
}

func TestTableAgreesWithBitwiseSingleByte(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := []byte{byte(i)}
		if tbl, bit := Checksum(b), Bitwise(b); tbl != bit {
			t.Fatalf("byte %#02x: table %#04x, bitwise %#04x", i, tbl, bit)
		}
	}
}

func TestTableAgreesWithBitwiseSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	buf := make([]byte, 256)
	for n := 0; n <= len(buf); n++ {
		rng.Read(buf[:n])
		if tbl, bit := Checksum(buf[:n]), Bitwise(buf[:n]); tbl != bit {
			t.Fatalf("len %d: table %#04x, bitwise %#04x", n, tbl, bit)
		}
	}
}

func TestStreamingMatchesOneShot(t *testing.T) {
	data := []byte{0x11, 0x03, 0x04, 0x00, 0x0A, 0x00, 0x0B}
	var c CRC
	c.Reset()
	for i := range data {
		c.PushBytes(data[i : i+1])
	}
	if c.Value() != Checksum(data) {
		t.Errorf("streaming %#04x, one-shot %#04x", c.Value(), Checksum(data))
	}
}

func TestAgainstReferenceImplementation(t *testing.T) {
	ref := crc16.MakeTable(crc16.CRC16_MODBUS)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		data := make([]byte, 1+rng.Intn(255))
		rng.Read(data)
		if got, want := Checksum(data), crc16.Checksum(data, ref); got != want {
			t.Fatalf("Checksum(% X) = %#04x, reference %#04x", data, got, want)
		}
	}
}
