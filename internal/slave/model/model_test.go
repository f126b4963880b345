// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"bytes"
	"errors"
	"testing"
)

func newTestModel(t *testing.T) *DataModel {
	t.Helper()
	m, err := NewDataModel(DefaultCapacity)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewDataModelCapacity(t *testing.T) {
	tests := []struct {
		name    string
		cap     Capacity
		wantErr bool
	}{
		{"Default", DefaultCapacity, false},
		{"FullAddressSpace", Capacity{MaxCapacity, MaxCapacity, MaxCapacity, MaxCapacity}, false},
		{"ZeroCoils", Capacity{0, 8, 8, 8}, true},
		{"TooManyRegisters", Capacity{8, 8, MaxCapacity + 1, 8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDataModel(tt.cap)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDataModel() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		name     string
		address  uint16
		quantity uint16
		capacity int
		want     error
	}{
		{"Fits", 0, 128, 128, nil},
		{"LastPoint", 127, 1, 128, nil},
		{"OnePastEnd", 127, 2, 128, ErrIllegalAddress},
		{"StartOutside", 128, 1, 128, ErrIllegalAddress},
		{"ZeroQuantity", 0, 0, 128, ErrInvalidQuantity},
		// 0xFFFF + 2 would wrap to 1 in 16-bit arithmetic
		{"NoWrapAround", 0xFFFF, 2, MaxCapacity, ErrIllegalAddress},
		{"TopOfAddressSpace", 0xFFFF, 1, MaxCapacity, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateRange(tt.address, tt.quantity, tt.capacity); !errors.Is(err, tt.want) {
				t.Errorf("validateRange() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCoilsPacking(t *testing.T) {
	m := newTestModel(t)
	// 10 coils starting at 3: 1,0,1,1,0,0,1,0 | 1,1
	in := []byte{0x4D, 0x03}
	if err := m.WriteMultipleCoils(3, 10, in); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadCoils(3, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, in) {
		t.Fatalf("ReadCoils() = % X, want % X", got, in)
	}

	// neighbours untouched, final partial byte padded with zeros
	got, _ = m.ReadCoils(0, 16)
	if want := []byte{0x4D << 3 & 0xFF, 0x4D>>5 | 0x03<<3}; !bytes.Equal(got, want) {
		t.Fatalf("ReadCoils(0, 16) = % X, want % X", got, want)
	}
}

func TestWriteMultipleCoilsIgnoresPaddingBits(t *testing.T) {
	m := newTestModel(t)
	if err := m.WriteMultipleCoils(0, 3, []byte{0xFF}); err != nil {
		t.Fatal(err)
	}
	got, _ := m.ReadCoils(0, 8)
	if got[0] != 0x07 {
		t.Fatalf("ReadCoils(0, 8) = %#02x, want 0x07", got[0])
	}
}

func TestWriteSingleCoil(t *testing.T) {
	m := newTestModel(t)
	if err := m.WriteSingleCoil(5, true); err != nil {
		t.Fatal(err)
	}
	got, _ := m.ReadCoils(0, 8)
	if got[0] != 0x20 {
		t.Fatalf("coils = %#02x, want 0x20", got[0])
	}
	if err := m.WriteSingleCoil(5, false); err != nil {
		t.Fatal(err)
	}
	got, _ = m.ReadCoils(0, 8)
	if got[0] != 0 {
		t.Fatalf("coils = %#02x, want 0", got[0])
	}
	if err := m.WriteSingleCoil(256, true); !errors.Is(err, ErrIllegalAddress) {
		t.Fatalf("WriteSingleCoil(256) = %v", err)
	}
}

func TestWriteMultipleCoilsShortData(t *testing.T) {
	m := newTestModel(t)
	if err := m.WriteMultipleCoils(0, 9, []byte{0xFF}); !errors.Is(err, ErrShortData) {
		t.Fatalf("WriteMultipleCoils() = %v, want ErrShortData", err)
	}
}

func TestDiscreteInputs(t *testing.T) {
	m := newTestModel(t)
	if err := m.SetDiscreteInput(9, true); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadDiscreteInputs(8, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x02}) {
		t.Fatalf("ReadDiscreteInputs() = % X", got)
	}
	if _, err := m.ReadDiscreteInputs(250, 7); !errors.Is(err, ErrIllegalAddress) {
		t.Fatalf("ReadDiscreteInputs(250, 7) = %v", err)
	}
}

func TestHoldingRegisters(t *testing.T) {
	m := newTestModel(t)
	if err := m.WriteSingleRegister(0, 0x000A); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteMultipleRegisters(1, 2, []byte{0x00, 0x0B, 0x12, 0x34}); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadHoldingRegisters(0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x00, 0x0A, 0x00, 0x0B, 0x12, 0x34}; !bytes.Equal(got, want) {
		t.Fatalf("ReadHoldingRegisters() = % X, want % X", got, want)
	}
	if _, err := m.ReadHoldingRegisters(200, 1); !errors.Is(err, ErrIllegalAddress) {
		t.Fatalf("ReadHoldingRegisters(200, 1) = %v", err)
	}
	if err := m.WriteMultipleRegisters(0, 2, []byte{0x00}); !errors.Is(err, ErrShortData) {
		t.Fatalf("WriteMultipleRegisters() = %v", err)
	}
}

func TestMaskWriteRegister(t *testing.T) {
	m := newTestModel(t)
	m.WriteSingleRegister(4, 0x0012)
	if err := m.MaskWriteRegister(4, 0x00F2, 0x0025); err != nil {
		t.Fatal(err)
	}
	got, _ := m.ReadHoldingRegisters(4, 1)
	if !bytes.Equal(got, []byte{0x00, 0x17}) {
		t.Fatalf("register 4 = % X, want 00 17", got)
	}
}

func TestReadWriteMultipleRegisters(t *testing.T) {
	m := newTestModel(t)
	got, err := m.ReadWriteMultipleRegisters(0, 3, 1, 1, []byte{0xBE, 0xEF})
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x00, 0x00, 0xBE, 0xEF, 0x00, 0x00}; !bytes.Equal(got, want) {
		t.Fatalf("ReadWriteMultipleRegisters() = % X, want % X", got, want)
	}
	if _, err := m.ReadWriteMultipleRegisters(0, 1, 127, 2, []byte{0, 0, 0, 0}); !errors.Is(err, ErrIllegalAddress) {
		t.Fatalf("write range past end = %v", err)
	}
}

func TestInputRegisters(t *testing.T) {
	m := newTestModel(t)
	if err := m.SetInputRegister(127, 0xABCD); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadInputRegisters(127, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0xAB, 0xCD}) {
		t.Fatalf("ReadInputRegisters() = % X", got)
	}
	if err := m.SetInputRegister(128, 1); !errors.Is(err, ErrIllegalAddress) {
		t.Fatalf("SetInputRegister(128) = %v", err)
	}
}

func TestTableRoundTrip(t *testing.T) {
	m, err := NewDataModel(Capacity{Coils: 12, DiscreteInputs: 8, HoldingRegisters: 2, InputRegisters: 1})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		table TableType
		in    []byte
		want  []byte
	}{
		// bits past capacity are cleared
		{TableCoils, []byte{0xA5, 0xFF}, []byte{0xA5, 0x0F}},
		{TableDiscreteInputs, []byte{0x81}, []byte{0x81}},
		{TableHoldingRegisters, []byte{0x12, 0x34, 0x56, 0x78}, []byte{0x12, 0x34, 0x56, 0x78}},
		{TableInputRegisters, []byte{0xFF, 0x00}, []byte{0xFF, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.table.String(), func(t *testing.T) {
			if err := m.LoadTable(tt.table, tt.in); err != nil {
				t.Fatal(err)
			}
			if got := m.ReadTable(tt.table); !bytes.Equal(got, tt.want) {
				t.Fatalf("ReadTable() = % X, want % X", got, tt.want)
			}
		})
	}
	if err := m.LoadTable(TableHoldingRegisters, []byte{1, 2}); err == nil {
		t.Fatal("LoadTable() accepted a short table")
	}
}
