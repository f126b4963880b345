// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package image reads and writes register store seed images.
//
// Layout, each table sized from the store capacities:
//   - Coils: packed bits, LSB first (Offset 0)
//   - DiscreteInputs: packed bits, LSB first
//   - HoldingRegisters: big-endian words
//   - InputRegisters: big-endian words
package image

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/rtu-slave/internal/slave/model"
)

var tables = []model.TableType{
	model.TableCoils,
	model.TableDiscreteInputs,
	model.TableHoldingRegisters,
	model.TableInputRegisters,
}

// Size returns the image size for capacity c.
func Size(c model.Capacity) int {
	total := 0
	for _, t := range tables {
		total += c.Size(t)
	}
	return total
}

// Load memory-maps the image at path read-only and copies it into m. The
// file must match the store capacities exactly.
func Load(path string, m *model.DataModel) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	c := m.Capacity()
	if want := int64(Size(c)); fi.Size() != want {
		return fmt.Errorf("image %s is %d bytes, store needs %d", path, fi.Size(), want)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mmap failed: %w", err)
	}
	defer data.Unmap()

	offset := 0
	for _, t := range tables {
		n := c.Size(t)
		if err := m.LoadTable(t, data[offset:offset+n]); err != nil {
			return err
		}
		offset += n
	}
	return nil
}

// Write renders the contents of m into a new image at path.
func Write(path string, m *model.DataModel) (err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() {
		if e := f.Close(); err == nil {
			err = e
		}
	}()

	size := Size(m.Capacity())
	if err := f.Truncate(int64(size)); err != nil {
		return fmt.Errorf("failed to resize image file: %w", err)
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("mmap failed: %w", err)
	}

	offset := 0
	for _, t := range tables {
		offset += copy(data[offset:], m.ReadTable(t))
	}
	if err := data.Flush(); err != nil {
		data.Unmap()
		return fmt.Errorf("failed to flush image: %w", err)
	}
	return data.Unmap()
}
