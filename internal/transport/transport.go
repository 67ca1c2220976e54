// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport defines the single-peer, notify-style channel frames
// are streamed over. Implementations live in the subpackages.
package transport

import (
	"github.com/pkg/errors"
)

var (
	// ErrPeerGone is returned by Send when the addressed peer is no longer
	// the active one. The frame is dropped, never redirected.
	ErrPeerGone = errors.New("transport: peer gone")
	// ErrBusy is returned by Send when the outbound queue is full.
	ErrBusy = errors.New("transport: send queue full")
	// ErrFrameTooLarge is returned by Send for frames over MaxPayload.
	ErrFrameTooLarge = errors.New("transport: frame exceeds max payload")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport: closed")
)

// PeerID identifies one connection of a peer. A reconnecting peer gets a
// fresh ID.
type PeerID string

// Transport carries frames to at most one connected peer.
type Transport interface {
	// Peer reports the currently connected peer, if any.
	Peer() (PeerID, bool)
	// Send queues one frame for the peer. It does not block on the
	// network and does not retain b after returning.
	Send(peer PeerID, b []byte) error
	// MaxPayload is the largest frame Send accepts, in bytes.
	MaxPayload() int
	Close() error
}

// CheckPayload validates b against max.
func CheckPayload(b []byte, max int) error {
	if len(b) > max {
		return errors.Wrapf(ErrFrameTooLarge, "%d > %d bytes", len(b), max)
	}
	return nil
}
