// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/golang/geo/r3"
)

const (
	degreesPerRadian = 180 / math.Pi
	radiansPerDegree = math.Pi / 180
)

// DegreesPerSecond converts an angular rate from rad/s, the unit sample
// sources deliver, into deg/s, the unit the filter step takes as input.
// This is the only place the conversion happens.
func DegreesPerSecond(radPerSec r3.Vector) r3.Vector {
	return radPerSec.Mul(degreesPerRadian)
}

// WrapDegrees maps an angle in degrees into (-180, 180].
func WrapDegrees(deg float64) float64 {
	w := math.Mod(deg, 360)
	switch {
	case w > 180:
		w -= 360
	case w <= -180:
		w += 360
	}
	return w
}
