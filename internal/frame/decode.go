// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import (
	"bytes"
	"encoding/json"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/relabs-tech/orientation_streamer/internal/imu"
	"github.com/relabs-tech/orientation_streamer/internal/orientation"
)

// ErrMissingField is returned when a field required by the caller is absent.
var ErrMissingField = errors.New("frame: missing field")

// Vector is a 3-axis value on the wire.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Message is a decoded frame. Every field is optional; unknown keys are
// ignored.
type Message struct {
	Roll  *float64 `json:"roll,omitempty"`
	Pitch *float64 `json:"pitch,omitempty"`
	Yaw   *float64 `json:"yaw,omitempty"`
	Accel *Vector  `json:"accel,omitempty"`
	Gyro  *Vector  `json:"gyro,omitempty"`
	Time  *int64   `json:"time,omitempty"` // ms
}

// Decode parses one frame. Surrounding whitespace (such as the newline
// terminating a serial line) is ignored.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		return Message{}, errors.Wrap(err, "frame: decode")
	}
	return m, nil
}

// Pose returns the orientation carried by the message. roll, pitch and yaw
// are all mandatory.
func (m Message) Pose() (orientation.Pose, error) {
	if m.Roll == nil || m.Pitch == nil || m.Yaw == nil {
		return orientation.Pose{}, errors.Wrap(ErrMissingField, "roll, pitch and yaw are required")
	}
	return orientation.Pose{Roll: *m.Roll, Pitch: *m.Pitch, Yaw: *m.Yaw}, nil
}

// Sample returns the raw reading carried by the message. accel and gyro
// are both mandatory and must be finite.
func (m Message) Sample() (imu.Sample, error) {
	if m.Accel == nil || m.Gyro == nil {
		return imu.Sample{}, errors.Wrap(ErrMissingField, "accel and gyro are required")
	}
	s := imu.Sample{
		Accel: r3.Vector{X: m.Accel.X, Y: m.Accel.Y, Z: m.Accel.Z},
		Gyro:  r3.Vector{X: m.Gyro.X, Y: m.Gyro.Y, Z: m.Gyro.Z},
	}
	if err := s.Validate(); err != nil {
		return imu.Sample{}, err
	}
	return s, nil
}
