// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/orientation_streamer/internal/imu"
)

const (
	// DefaultSampleRate matches the default 10 ms streaming cadence.
	DefaultSampleRate = 100.0
	// DefaultBeta is the gradient-descent gain, in rad/s.
	DefaultBeta = 0.1

	// MinAccelNorm is the accelerometer magnitude (m/s²) below which the
	// reading is treated as free fall or a fault and the gravity
	// correction is skipped for that tick.
	MinAccelNorm = 1e-3

	gradientEpsilon = 1e-12
)

// ErrNotInitialized is returned by Update on a Filter not built with New.
var ErrNotInitialized = errors.New("orientation: filter not initialized")

// Options configures a Filter.
type Options struct {
	// SampleRate in Hz. Must match the rate Update is called at, since
	// every step integrates over 1/SampleRate.
	SampleRate float64
	// Beta trades gyro smoothness (low) against accelerometer drift
	// correction (high). Zero disables the correction entirely.
	Beta float64
}

// Filter is a gradient-descent (Madgwick) attitude filter for
// accelerometer + gyroscope input. It is not safe for concurrent use;
// a single owner calls Update once per sample.
type Filter struct {
	q             quat.Number
	invSampleRate float64
	beta          float64
}

var identity = quat.Number{Real: 1}

// New returns a filter at the identity orientation.
func New(opts Options) (*Filter, error) {
	if !(opts.SampleRate > 0) || math.IsInf(opts.SampleRate, 0) {
		return nil, errors.Errorf("orientation: sample rate must be positive and finite, got %v", opts.SampleRate)
	}
	if !(opts.Beta >= 0) || math.IsInf(opts.Beta, 0) {
		return nil, errors.Errorf("orientation: beta must be non-negative and finite, got %v", opts.Beta)
	}
	return &Filter{
		q:             identity,
		invSampleRate: 1 / opts.SampleRate,
		beta:          opts.Beta,
	}, nil
}

// Update advances the filter by one sample and returns the new estimate.
// A malformed sample leaves the state untouched.
func (f *Filter) Update(s imu.Sample) (Pose, error) {
	if f == nil || f.invSampleRate == 0 {
		return Pose{}, ErrNotInitialized
	}
	if err := s.Validate(); err != nil {
		return Pose{}, err
	}
	f.step(DegreesPerSecond(s.Gyro), s.Accel)
	return poseFromQuaternion(f.q), nil
}

// Reset puts the filter back at the identity orientation.
func (f *Filter) Reset() {
	f.q = identity
}

// step integrates one sample. gyro is in deg/s, accel in any unit.
func (f *Filter) step(gyro, accel r3.Vector) {
	w := gyro.Mul(radiansPerDegree)
	q := f.q

	// q̇ = ½ q ⊗ (0, ω)
	qDot := quat.Scale(0.5, quat.Mul(q, quat.Number{Imag: w.X, Jmag: w.Y, Kmag: w.Z}))

	if accel.Norm() > MinAccelNorm {
		s := gradient(q, accel.Normalize())
		if n := quat.Abs(s); n > gradientEpsilon {
			qDot = quat.Sub(qDot, quat.Scale(f.beta/n, s))
		}
	}

	q = quat.Add(q, quat.Scale(f.invSampleRate, qDot))
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return
	}
	f.q = quat.Scale(1/n, q)
}

// gradient is Jᵀf for the gravity objective: the direction in quaternion
// space that moves the predicted gravity vector towards the measured,
// normalized, accelerometer vector a.
func gradient(q quat.Number, a r3.Vector) quat.Number {
	q0, q1, q2, q3 := q.Real, q.Imag, q.Jmag, q.Kmag
	q0q0, q1q1, q2q2, q3q3 := q0*q0, q1*q1, q2*q2, q3*q3

	return quat.Number{
		Real: 4*q0*q2q2 + 2*q2*a.X + 4*q0*q1q1 - 2*q1*a.Y,
		Imag: 4*q1*q3q3 - 2*q3*a.X + 4*q0q0*q1 - 2*q0*a.Y - 4*q1 + 8*q1*q1q1 + 8*q1*q2q2 + 4*q1*a.Z,
		Jmag: 4*q0q0*q2 + 2*q0*a.X + 4*q2*q3q3 - 2*q3*a.Y - 4*q2 + 8*q2*q1q1 + 8*q2*q2q2 + 4*q2*a.Z,
		Kmag: 4*q1q1*q3 - 2*q1*a.X + 4*q2q2*q3 - 2*q2*a.Y,
	}
}
