// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Pose is the canonical representation of orientation for the app.
// Roll and yaw are in (-180, 180], pitch in [-90, 90], all in degrees.
// Yaw has no heading reference and drifts slowly over time.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`

	// Q is the unit quaternion the angles were derived from.
	Q quat.Number `json:"-"`
}

// poseFromQuaternion converts a unit quaternion (w, x, y, z) into
// Tait-Bryan angles, aerospace sequence.
//
//	roll  = atan2(q0q1 + q2q3, ½ - q1² - q2²)
//	pitch = asin(-2(q1q3 - q0q2))
//	yaw   = atan2(q1q2 + q0q3, ½ - q2² - q3²)
func poseFromQuaternion(q quat.Number) Pose {
	q0, q1, q2, q3 := q.Real, q.Imag, q.Jmag, q.Kmag

	roll := math.Atan2(q0*q1+q2*q3, 0.5-q1*q1-q2*q2)
	sinPitch := -2 * (q1*q3 - q0*q2)
	// rounding can push |sinPitch| a hair past 1 near ±90°
	sinPitch = math.Max(-1, math.Min(1, sinPitch))
	pitch := math.Asin(sinPitch)
	yaw := math.Atan2(q1*q2+q0*q3, 0.5-q2*q2-q3*q3)

	return Pose{
		Roll:  WrapDegrees(roll * degreesPerRadian),
		Pitch: pitch * degreesPerRadian,
		Yaw:   WrapDegrees(yaw * degreesPerRadian),
		Q:     q,
	}
}
