// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	// BufferSize bounds the receive accumulator, the pending frame and the
	// transmit buffer.
	BufferSize = MaxSize
)
