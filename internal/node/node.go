// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package node

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/ffutop/rtu-slave/modbus/rtu"
)

// Link is the foreground side of the frame assembler. Neither call blocks.
type Link interface {
	Read(p []byte) int
	Write(p []byte) int
}

// Handler answers one received frame; false means no reply.
type Handler interface {
	HandleFrame(frame []byte) ([]byte, bool)
}

// Node runs the foreground poll cycle of a slave station: drain the latest
// complete frame, hand it to the protocol handler, queue the reply.
type Node struct {
	Name     string
	link     Link
	handler  Handler
	interval time.Duration
	buf      [rtu.BufferSize]byte
}

// NewNode creates a new Node polling link every interval.
func NewNode(name string, link Link, handler Handler, interval time.Duration) *Node {
	return &Node{
		Name:     name,
		link:     link,
		handler:  handler,
		interval: interval,
	}
}

// Poll runs one cycle and reports whether a frame was drained.
func (n *Node) Poll() bool {
	length := n.link.Read(n.buf[:])
	if length == 0 {
		return false
	}
	slog.Debug("Received frame", "node", n.Name, "frame", hex.EncodeToString(n.buf[:length]))

	resp, ok := n.handler.HandleFrame(n.buf[:length])
	if !ok {
		return true
	}
	if written := n.link.Write(resp); written != len(resp) {
		slog.Warn("Response truncated", "node", n.Name, "length", len(resp), "written", written)
	}
	slog.Debug("Queued response", "node", n.Name, "frame", hex.EncodeToString(resp))
	return true
}

// Run polls until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	slog.Info("Starting node", "node", n.Name, "interval", n.interval)
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Node stopped", "node", n.Name)
			return nil
		case <-ticker.C:
			// drain everything that arrived since the last tick
			for n.Poll() {
			}
		}
	}
}
