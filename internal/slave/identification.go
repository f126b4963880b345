// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"github.com/ffutop/rtu-slave/modbus"
	"github.com/ffutop/rtu-slave/modbus/rtu"
)

// Read Device ID codes.
const (
	readDeviceIDBasic      = 0x01 // stream access from the given object
	readDeviceIDIndividual = 0x04 // one specific object
)

const (
	// conformityBasic is the basic category with stream and individual access.
	conformityBasic = 0x81

	maxPDUData      = rtu.MaxSize - rtu.MinSize
	maxObjectLength = maxPDUData - 6 - 2
)

// Basic object ids.
const (
	objectVendorName = iota
	objectProductCode
	objectRevision
	basicObjects
)

// WithIdentification sets the basic device identification objects. Values
// longer than a single response can carry are truncated.
func WithIdentification(vendorName, productCode, revision string) Option {
	return func(s *Slave) {
		for id, v := range [basicObjects]string{
			objectVendorName:  vendorName,
			objectProductCode: productCode,
			objectRevision:    revision,
		} {
			if len(v) > maxObjectLength {
				v = v[:maxObjectLength]
			}
			s.identity[id] = []byte(v)
		}
	}
}

func (s *Slave) handleEncapsulatedInterface(data []byte) outcome {
	if len(data) < 1 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	if data[0] != modbus.MEITypeReadDeviceIdentification {
		return fail(modbus.ExceptionCodeIllegalFunction)
	}
	return s.readDeviceIdentification(data[1:])
}

// readDeviceIdentification answers Read Device Identification for the basic
// category. A stream request naming an unknown object restarts at object 0;
// objects that do not fit are announced through more-follows.
func (s *Slave) readDeviceIdentification(data []byte) outcome {
	if len(data) != 2 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	code, objectID := data[0], int(data[1])

	last := basicObjects
	switch code {
	case readDeviceIDBasic:
		if objectID >= basicObjects {
			objectID = objectVendorName
		}
	case readDeviceIDIndividual:
		if objectID >= basicObjects {
			return fail(modbus.ExceptionCodeIllegalDataAddress)
		}
		last = objectID + 1
	default:
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}

	payload := []byte{modbus.MEITypeReadDeviceIdentification, code, conformityBasic, 0x00, 0x00, 0x00}
	for id := objectID; id < last; id++ {
		obj := s.identity[id]
		if len(payload)+2+len(obj) > maxPDUData {
			payload[3] = 0xFF
			payload[4] = byte(id)
			break
		}
		payload = append(payload, byte(id), byte(len(obj)))
		payload = append(payload, obj...)
		payload[5]++
	}
	return ok(payload)
}
