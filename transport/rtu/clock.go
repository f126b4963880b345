// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"sync"
	"time"

	mbrtu "github.com/ffutop/rtu-slave/modbus/rtu"
)

// Clock is a single-shot silence counter with two compare channels built on
// the host's monotonic clock. Each compare runs its callback on a timer
// goroutine; a callback may still run after a Restart that raced it, so
// consumers check Reached before acting.
type Clock struct {
	mu       sync.Mutex
	mid, end time.Duration
	start    time.Time
	midTimer *time.Timer
	endTimer *time.Timer
	onMid    func()
	onEnd    func()
}

// NewClock returns a stopped Clock. onMid and onEnd are called when mid and
// end have elapsed since the last Restart.
func NewClock(mid, end time.Duration, onMid, onEnd func()) *Clock {
	return &Clock{mid: mid, end: end, onMid: onMid, onEnd: onEnd}
}

// Restart zeroes the counter and arms both compares.
func (c *Clock) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.start = time.Now()
	if c.midTimer == nil {
		c.midTimer = time.AfterFunc(c.mid, c.onMid)
		c.endTimer = time.AfterFunc(c.end, c.onEnd)
		return
	}
	c.midTimer.Reset(c.mid)
	c.endTimer.Reset(c.end)
}

// Reached reports whether ch's threshold has elapsed since the last Restart.
// A counter that was never started has reached both.
func (c *Clock) Reached(ch mbrtu.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.start.IsZero() {
		return true
	}
	elapsed := time.Since(c.start)
	if ch == mbrtu.ChannelMid {
		return elapsed >= c.mid
	}
	return elapsed >= c.end
}

// Stop disarms both compares.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.midTimer != nil {
		c.midTimer.Stop()
		c.endTimer.Stop()
	}
}

// Thresholds returns the mid and end durations.
func (c *Clock) Thresholds() (mid, end time.Duration) {
	return c.mid, c.end
}
