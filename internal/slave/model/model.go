// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// MaxCapacity is the size of the 16-bit Modbus address space.
const MaxCapacity = 65536

var (
	ErrIllegalAddress  = errors.New("model: address range out of bounds")
	ErrInvalidQuantity = errors.New("model: quantity must be greater than 0")
	ErrShortData       = errors.New("model: insufficient data length")
)

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableCoils TableType = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete_inputs"
	case TableHoldingRegisters:
		return "holding_registers"
	case TableInputRegisters:
		return "input_registers"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

// Capacity is the number of addressable points per table.
type Capacity struct {
	Coils            int
	DiscreteInputs   int
	HoldingRegisters int
	InputRegisters   int
}

// DefaultCapacity matches the reference device.
var DefaultCapacity = Capacity{
	Coils:            256,
	DiscreteInputs:   256,
	HoldingRegisters: 128,
	InputRegisters:   128,
}

// Of returns the capacity of table t.
func (c Capacity) Of(t TableType) int {
	switch t {
	case TableCoils:
		return c.Coils
	case TableDiscreteInputs:
		return c.DiscreteInputs
	case TableHoldingRegisters:
		return c.HoldingRegisters
	case TableInputRegisters:
		return c.InputRegisters
	}
	return 0
}

// Size returns the byte size of table t in its wire encoding: bits packed
// LSB first, registers big-endian.
func (c Capacity) Size(t TableType) int {
	n := c.Of(t)
	if t == TableCoils || t == TableDiscreteInputs {
		return (n + 7) / 8
	}
	return n * 2
}

// DataModel holds the modbus data in memory.
// Every table has a fixed capacity; coils and discrete inputs are bit-packed,
// bit i%8 of byte i/8 holding address i.
type DataModel struct {
	mu  sync.RWMutex
	cap Capacity

	// 0x Coils (Read/Write).
	coils []byte
	// 1x Discrete Inputs (Read Only).
	discreteInputs []byte
	// 4x Holding Registers (Read/Write).
	holdingRegisters []uint16
	// 3x Input Registers (Read Only).
	inputRegisters []uint16
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel(c Capacity) (*DataModel, error) {
	for _, t := range []TableType{TableCoils, TableDiscreteInputs, TableHoldingRegisters, TableInputRegisters} {
		if n := c.Of(t); n < 1 || n > MaxCapacity {
			return nil, fmt.Errorf("model: %s capacity %d out of range [1, %d]", t, n, MaxCapacity)
		}
	}
	return &DataModel{
		cap:              c,
		coils:            make([]byte, c.Size(TableCoils)),
		discreteInputs:   make([]byte, c.Size(TableDiscreteInputs)),
		holdingRegisters: make([]uint16, c.HoldingRegisters),
		inputRegisters:   make([]uint16, c.InputRegisters),
	}, nil
}

// Capacity returns the fixed table sizes.
func (m *DataModel) Capacity() Capacity {
	return m.cap
}

// ReadCoils reads a range of coils and returns them as packed bytes (Modbus format).
func (m *DataModel) ReadCoils(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity, m.cap.Coils); err != nil {
		return nil, err
	}
	return readBits(m.coils, int(address), int(quantity)), nil
}

// ReadDiscreteInputs reads a range of discrete inputs and returns them as packed bytes.
func (m *DataModel) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity, m.cap.DiscreteInputs); err != nil {
		return nil, err
	}
	return readBits(m.discreteInputs, int(address), int(quantity)), nil
}

// WriteSingleCoil sets or clears one coil.
func (m *DataModel) WriteSingleCoil(address uint16, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, 1, m.cap.Coils); err != nil {
		return err
	}
	setBit(m.coils, int(address), on)
	return nil
}

// WriteMultipleCoils writes a range of coils from packed bytes.
func (m *DataModel) WriteMultipleCoils(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, quantity, m.cap.Coils); err != nil {
		return err
	}
	if len(data) < (int(quantity)+7)/8 {
		return ErrShortData
	}
	writeBits(m.coils, int(address), int(quantity), data)
	return nil
}

// SetDiscreteInput sets one discrete input. Discrete inputs are read-only on
// the wire; this is the local side's way to drive them.
func (m *DataModel) SetDiscreteInput(address uint16, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, 1, m.cap.DiscreteInputs); err != nil {
		return err
	}
	setBit(m.discreteInputs, int(address), on)
	return nil
}

// ReadHoldingRegisters reads a range of holding registers and returns them as BigEndian bytes.
func (m *DataModel) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity, m.cap.HoldingRegisters); err != nil {
		return nil, err
	}
	return readRegisters(m.holdingRegisters, int(address), int(quantity)), nil
}

// WriteSingleRegister writes a single holding register.
func (m *DataModel) WriteSingleRegister(address uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, 1, m.cap.HoldingRegisters); err != nil {
		return err
	}
	m.holdingRegisters[address] = value
	return nil
}

// WriteMultipleRegisters writes a range of holding registers from BigEndian bytes.
func (m *DataModel) WriteMultipleRegisters(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, quantity, m.cap.HoldingRegisters); err != nil {
		return err
	}
	if len(data) < int(quantity)*2 {
		return ErrShortData
	}
	writeRegisters(m.holdingRegisters, int(address), int(quantity), data)
	return nil
}

// MaskWriteRegister applies (current AND andMask) OR (orMask AND NOT andMask)
// to one holding register.
func (m *DataModel) MaskWriteRegister(address, andMask, orMask uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, 1, m.cap.HoldingRegisters); err != nil {
		return err
	}
	cur := m.holdingRegisters[address]
	m.holdingRegisters[address] = (cur & andMask) | (orMask &^ andMask)
	return nil
}

// ReadWriteMultipleRegisters writes a range of holding registers, then reads
// another range, as one step.
func (m *DataModel) ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity uint16, data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(readAddress, readQuantity, m.cap.HoldingRegisters); err != nil {
		return nil, err
	}
	if err := validateRange(writeAddress, writeQuantity, m.cap.HoldingRegisters); err != nil {
		return nil, err
	}
	if len(data) < int(writeQuantity)*2 {
		return nil, ErrShortData
	}
	writeRegisters(m.holdingRegisters, int(writeAddress), int(writeQuantity), data)
	return readRegisters(m.holdingRegisters, int(readAddress), int(readQuantity)), nil
}

// ReadInputRegisters reads a range of input registers and returns them as BigEndian bytes.
func (m *DataModel) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity, m.cap.InputRegisters); err != nil {
		return nil, err
	}
	return readRegisters(m.inputRegisters, int(address), int(quantity)), nil
}

// SetInputRegister writes one input register from the local side.
func (m *DataModel) SetInputRegister(address uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, 1, m.cap.InputRegisters); err != nil {
		return err
	}
	m.inputRegisters[address] = value
	return nil
}

// ReadTable returns a copy of a whole table in its wire encoding.
func (m *DataModel) ReadTable(t TableType) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch t {
	case TableCoils:
		return append([]byte(nil), m.coils...)
	case TableDiscreteInputs:
		return append([]byte(nil), m.discreteInputs...)
	case TableHoldingRegisters:
		return readRegisters(m.holdingRegisters, 0, len(m.holdingRegisters))
	case TableInputRegisters:
		return readRegisters(m.inputRegisters, 0, len(m.inputRegisters))
	}
	return nil
}

// LoadTable replaces a whole table from its wire encoding. data must be
// exactly Capacity().Size(t) bytes long.
func (m *DataModel) LoadTable(t TableType, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if want := m.cap.Size(t); len(data) != want {
		return fmt.Errorf("model: %s table is %d bytes, got %d", t, want, len(data))
	}
	switch t {
	case TableCoils:
		copy(m.coils, data)
		clearPadding(m.coils, m.cap.Coils)
	case TableDiscreteInputs:
		copy(m.discreteInputs, data)
		clearPadding(m.discreteInputs, m.cap.DiscreteInputs)
	case TableHoldingRegisters:
		for i := range m.holdingRegisters {
			m.holdingRegisters[i] = binary.BigEndian.Uint16(data[i*2:])
		}
	case TableInputRegisters:
		for i := range m.inputRegisters {
			m.inputRegisters[i] = binary.BigEndian.Uint16(data[i*2:])
		}
	}
	return nil
}

// validateRange checks [address, address+quantity) against capacity. The sum
// is computed in int so that it cannot wrap at the 16-bit boundary.
func validateRange(address, quantity uint16, capacity int) error {
	if quantity == 0 {
		return ErrInvalidQuantity
	}
	// address is 0-based.
	if int(address)+int(quantity) > capacity {
		return ErrIllegalAddress
	}
	return nil
}

func readBits(table []byte, address, quantity int) []byte {
	result := make([]byte, (quantity+7)/8)
	for i := 0; i < quantity; i++ {
		if getBit(table, address+i) {
			result[i/8] |= 1 << uint(i%8)
		}
	}
	return result
}

func writeBits(table []byte, address, quantity int, data []byte) {
	for i := 0; i < quantity; i++ {
		setBit(table, address+i, (data[i/8]>>uint(i%8))&1 != 0)
	}
}

func getBit(table []byte, n int) bool {
	return table[n/8]&(1<<uint(n%8)) != 0
}

func setBit(table []byte, n int, on bool) {
	if on {
		table[n/8] |= 1 << uint(n%8)
	} else {
		table[n/8] &^= 1 << uint(n%8)
	}
}

// clearPadding zeroes the unused high bits of the last byte of a bit table.
func clearPadding(table []byte, capacity int) {
	if r := capacity % 8; r != 0 {
		table[len(table)-1] &= 1<<uint(r) - 1
	}
}

func readRegisters(table []uint16, address, quantity int) []byte {
	result := make([]byte, quantity*2)
	for i := 0; i < quantity; i++ {
		binary.BigEndian.PutUint16(result[i*2:], table[address+i])
	}
	return result
}

func writeRegisters(table []uint16, address, quantity int, data []byte) {
	for i := 0; i < quantity; i++ {
		table[address+i] = binary.BigEndian.Uint16(data[i*2:])
	}
}
