// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stream

import (
	"github.com/relabs-tech/orientation_streamer/internal/orientation"
	"github.com/relabs-tech/orientation_streamer/internal/transport"
)

// State is the connection state of the loop.
type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Counters are monotonic since the loop was created.
type Counters struct {
	Ticks        uint64 `json:"ticks"`
	FramesSent   uint64 `json:"frames_sent"`
	SensorFaults uint64 `json:"sensor_faults"`
	SendFailures uint64 `json:"send_failures"`
	Connects     uint64 `json:"connects"`
}

// Snapshot is a consistent copy of the loop's observable state.
type Snapshot struct {
	State    State            `json:"state"`
	Peer     transport.PeerID `json:"peer,omitempty"`
	Pose     orientation.Pose `json:"pose"`
	HavePose bool             `json:"have_pose"`
	Counters
}
