// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrMalformedSample is returned for samples with a non-finite component.
var ErrMalformedSample = errors.New("imu: malformed sample")

// Sample represents a single synchronized 6-axis reading.
type Sample struct {
	Accel r3.Vector // m/s²
	Gyro  r3.Vector // rad/s
}

// Validate checks that all six components are finite.
func (s Sample) Validate() error {
	for _, v := range []float64{s.Accel.X, s.Accel.Y, s.Accel.Z, s.Gyro.X, s.Gyro.Y, s.Gyro.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrMalformedSample, "accel=%v gyro=%v", s.Accel, s.Gyro)
		}
	}
	return nil
}

// Source produces one fresh sample per call. A missing reading is an
// error, never a zero-value sample.
type Source interface {
	Read(ctx context.Context) (Sample, error)
}
