// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "go.uber.org/atomic"

type frame struct {
	buf [BufferSize]byte
	n   int
}

// Mailbox holds at most one complete frame. Publish replaces whatever is
// pending; Take empties the slot. A frame is owned by exactly one side at a
// time: the slot swap is the hand-over.
type Mailbox struct {
	slot atomic.Pointer[frame]
	free atomic.Pointer[frame]
}

// Publish stores a copy of p, discarding an unconsumed frame.
func (m *Mailbox) Publish(p []byte) {
	f := m.free.Swap(nil)
	if f == nil {
		f = new(frame)
	}
	f.n = copy(f.buf[:], p)
	if old := m.slot.Swap(f); old != nil {
		m.free.CompareAndSwap(nil, old)
	}
}

// Take copies the pending frame into p and empties the slot. It returns 0 if
// nothing is pending.
func (m *Mailbox) Take(p []byte) int {
	f := m.slot.Swap(nil)
	if f == nil {
		return 0
	}
	n := copy(p, f.buf[:f.n])
	m.free.CompareAndSwap(nil, f)
	return n
}

// Pending reports whether a frame is waiting.
func (m *Mailbox) Pending() bool {
	return m.slot.Load() != nil
}
