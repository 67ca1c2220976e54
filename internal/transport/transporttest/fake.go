// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"sync"

	"github.com/relabs-tech/orientation_streamer/internal/transport"
)

// Frame is one frame accepted by Fake.Send.
type Frame struct {
	Peer    transport.PeerID
	Payload []byte
}

// Fake is a transport.Transport whose peer is set by the test.
type Fake struct {
	mu      sync.Mutex
	peer    transport.PeerID
	present bool
	sendErr error
	max     int
	frames  []Frame
	sends   int
	closed  bool
}

var _ transport.Transport = (*Fake)(nil)

// New returns a fake with no peer accepting frames up to maxPayload bytes.
func New(maxPayload int) *Fake {
	return &Fake{max: maxPayload}
}

// Connect makes id the active peer.
func (f *Fake) Connect(id transport.PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peer, f.present = id, true
}

// Disconnect drops the active peer.
func (f *Fake) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peer, f.present = "", false
}

// FailSends makes every following Send return err (nil restores success).
func (f *Fake) FailSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *Fake) Peer() (transport.PeerID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peer, f.present
}

func (f *Fake) Send(peer transport.PeerID, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	switch {
	case f.closed:
		return transport.ErrClosed
	case !f.present || peer != f.peer:
		return transport.ErrPeerGone
	case f.sendErr != nil:
		return f.sendErr
	}
	if err := transport.CheckPayload(b, f.max); err != nil {
		return err
	}
	f.frames = append(f.frames, Frame{Peer: peer, Payload: append([]byte(nil), b...)})
	return nil
}

func (f *Fake) MaxPayload() int { return f.max }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Frames returns a copy of every delivered frame in order.
func (f *Fake) Frames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.frames...)
}

// Sends counts Send calls, delivered or not.
func (f *Fake) Sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
