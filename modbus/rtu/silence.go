// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "go.uber.org/atomic"

// Channel identifies one of the two compare points of the silence timer.
type Channel int

const (
	ChannelMid Channel = iota // 1.5 character times
	ChannelEnd                // 3.5 character times, timer stops here
)

func (c Channel) String() string {
	if c == ChannelMid {
		return "mid"
	}
	return "end"
}

// Timer is a one-shot counter with two compare channels. Restart zeroes and
// starts the counter; it stops on its own once the end compare is reached.
// Reached reports whether the counter has passed the given channel since the
// last Restart, which lets callers drop compare events that were raised
// before a restart but delivered after it.
type Timer interface {
	Restart()
	Reached(ch Channel) bool
}

// SilenceTimer tracks the two silence latches on top of a Timer. Both latches
// start set so that the first received byte opens a fresh frame and the first
// response can be transmitted without waiting for a timeout.
type SilenceTimer struct {
	timer    Timer
	midFired atomic.Bool
	endFired atomic.Bool
}

// NewSilenceTimer wraps t.
func NewSilenceTimer(t Timer) *SilenceTimer {
	s := &SilenceTimer{timer: t}
	s.midFired.Store(true)
	s.endFired.Store(true)
	return s
}

// OnByteEvent restarts the timer and clears both latches. It is called for
// every byte received or transmitted.
func (s *SilenceTimer) OnByteEvent() {
	s.timer.Restart()
	s.midFired.Store(false)
	s.endFired.Store(false)
}

// OnMidTimeout latches the 1.5 character silence. It returns false when the
// event is stale.
func (s *SilenceTimer) OnMidTimeout() bool {
	if !s.timer.Reached(ChannelMid) {
		return false
	}
	s.midFired.Store(true)
	return true
}

// OnEndTimeout latches the 3.5 character silence. It returns false when the
// event is stale.
func (s *SilenceTimer) OnEndTimeout() bool {
	if !s.timer.Reached(ChannelEnd) {
		return false
	}
	s.endFired.Store(true)
	return true
}

func (s *SilenceTimer) MidFired() bool { return s.midFired.Load() }

func (s *SilenceTimer) EndFired() bool { return s.endFired.Load() }
