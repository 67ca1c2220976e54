// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package frame renders orientation estimates into bounded JSON text frames
// and parses them back leniently.
//
// The field set of each variant is fixed, and every number is printed with
// exactly two decimals from a clamped range, so the longest possible frame
// is a compile-time constant:
//
//	Fused: {"roll":-180.00,"pitch":-180.00,"yaw":-180.00}                 46 bytes
//	Raw:   Fused keys + "accel":{x,y,z} + "gyro":{x,y,z} (±999.99 each)
//	       + "time":4294967295                                           155 bytes
package frame

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/relabs-tech/orientation_streamer/internal/imu"
	"github.com/relabs-tech/orientation_streamer/internal/orientation"
)

// Variant selects the fixed field set of a frame.
type Variant int

const (
	// Fused frames carry roll, pitch and yaw only.
	Fused Variant = iota
	// Raw frames add the sample the estimate came from and a timestamp.
	Raw
)

const (
	precision = 2

	// componentLimit bounds raw accel/gyro values so they render in at
	// most len("-999.99") bytes.
	componentLimit = 999.99

	maxAngleLen     = len("-180.00")
	maxComponentLen = len("-999.99")
	maxTimeLen      = len("4294967295")

	vectorWorstCase = len(`{"x":`) + maxComponentLen +
		len(`,"y":`) + maxComponentLen +
		len(`,"z":`) + maxComponentLen +
		len(`}`)

	// FusedWorstCase is the longest Fused frame in bytes.
	FusedWorstCase = len(`{"roll":`) + maxAngleLen +
		len(`,"pitch":`) + maxAngleLen +
		len(`,"yaw":`) + maxAngleLen +
		len(`}`)

	// RawWorstCase is the longest Raw frame in bytes.
	RawWorstCase = FusedWorstCase - len(`}`) +
		len(`,"accel":`) + vectorWorstCase +
		len(`,"gyro":`) + vectorWorstCase +
		len(`,"time":`) + maxTimeLen +
		len(`}`)
)

// ParseVariant accepts "fused" or "raw".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fused":
		return Fused, nil
	case "raw":
		return Raw, nil
	default:
		return 0, errors.Errorf("frame: unknown variant %q (want fused or raw)", s)
	}
}

func (v Variant) String() string {
	switch v {
	case Fused:
		return "fused"
	case Raw:
		return "raw"
	default:
		return "variant(" + strconv.Itoa(int(v)) + ")"
	}
}

// WorstCaseSize is the maximum encoded length of the variant in bytes.
func (v Variant) WorstCaseSize() int {
	if v == Raw {
		return RawWorstCase
	}
	return FusedWorstCase
}

// Encoder renders frames of one variant.
type Encoder struct {
	variant Variant
}

// NewEncoder checks that the variant's worst-case frame fits in
// maxFrameSize. A frame that could overflow the transport payload is a
// configuration error, so it is rejected here and never at runtime.
func NewEncoder(v Variant, maxFrameSize int) (*Encoder, error) {
	if v != Fused && v != Raw {
		return nil, errors.Errorf("frame: unknown variant %d", int(v))
	}
	if ws := v.WorstCaseSize(); ws > maxFrameSize {
		return nil, errors.Errorf("frame: %s frames need up to %d bytes, max frame size is %d", v, ws, maxFrameSize)
	}
	return &Encoder{variant: v}, nil
}

// Variant returns the encoder's variant.
func (e *Encoder) Variant() Variant { return e.variant }

// WorstCaseSize is the buffer capacity Append never grows past.
func (e *Encoder) WorstCaseSize() int { return e.variant.WorstCaseSize() }

// Append renders one frame onto dst and returns the extended slice. It
// never fails: angles are wrapped into (-180, 180], raw components clamped
// to ±999.99 and non-finite values written as 0.00. s and ms are only used
// by Raw frames.
func (e *Encoder) Append(dst []byte, p orientation.Pose, s imu.Sample, ms uint32) []byte {
	dst = append(dst, `{"roll":`...)
	dst = appendAngle(dst, p.Roll)
	dst = append(dst, `,"pitch":`...)
	dst = appendAngle(dst, p.Pitch)
	dst = append(dst, `,"yaw":`...)
	dst = appendAngle(dst, p.Yaw)

	if e.variant == Raw {
		dst = append(dst, `,"accel":`...)
		dst = appendVector(dst, s.Accel.X, s.Accel.Y, s.Accel.Z)
		dst = append(dst, `,"gyro":`...)
		dst = appendVector(dst, s.Gyro.X, s.Gyro.Y, s.Gyro.Z)
		dst = append(dst, `,"time":`...)
		dst = strconv.AppendUint(dst, uint64(ms), 10)
	}
	return append(dst, '}')
}

func appendAngle(dst []byte, deg float64) []byte {
	return appendFixed(dst, orientation.WrapDegrees(finite(deg)))
}

func appendVector(dst []byte, x, y, z float64) []byte {
	dst = append(dst, `{"x":`...)
	dst = appendFixed(dst, clamp(x))
	dst = append(dst, `,"y":`...)
	dst = appendFixed(dst, clamp(y))
	dst = append(dst, `,"z":`...)
	dst = appendFixed(dst, clamp(z))
	return append(dst, '}')
}

func appendFixed(dst []byte, v float64) []byte {
	// keep "-0.00" off the wire
	if math.Abs(v) < 0.005 {
		v = 0
	}
	return strconv.AppendFloat(dst, v, 'f', precision, 64)
}

func clamp(v float64) float64 {
	return math.Max(-componentLimit, math.Min(componentLimit, finite(v)))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
