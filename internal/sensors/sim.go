// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"

	"github.com/relabs-tech/orientation_streamer/internal/imu"
)

// Sim synthesizes the readings of a device at rest swinging through a
// smooth known attitude:
//
//	roll  = 20·sin(t)      °
//	pitch = 15·cos(0.7·t)  °
//	yaw   = 30·t           °
type Sim struct {
	clk   clock.Clock
	start time.Time
}

var _ imu.Source = (*Sim)(nil)

// NewSim starts the trajectory at the clock's current time.
func NewSim(clk clock.Clock) *Sim {
	return &Sim{clk: clk, start: clk.Now()}
}

func (s *Sim) Read(ctx context.Context) (imu.Sample, error) {
	if err := ctx.Err(); err != nil {
		return imu.Sample{}, err
	}
	return simSample(s.clk.Since(s.start).Seconds()), nil
}

// SimAttitude is the true roll, pitch and yaw in degrees at t seconds.
func SimAttitude(t float64) (roll, pitch, yaw float64) {
	return 20 * math.Sin(t), 15 * math.Cos(0.7*t), 30 * t
}

func simSample(t float64) imu.Sample {
	roll, pitch, _ := SimAttitude(t)
	r, p := roll*radiansPerDeg, pitch*radiansPerDeg

	// Euler angle rates, rad/s
	dr := 20 * math.Cos(t) * radiansPerDeg
	dp := -15 * 0.7 * math.Sin(0.7*t) * radiansPerDeg
	dy := 30 * radiansPerDeg

	sr, cr := math.Sincos(r)
	sp, cp := math.Sincos(p)
	return imu.Sample{
		Accel: r3.Vector{X: -sp, Y: sr * cp, Z: cr * cp}.Mul(standardGravity),
		Gyro: r3.Vector{
			X: dr - dy*sp,
			Y: dp*cr + dy*sr*cp,
			Z: -dp*sr + dy*cr*cp,
		},
	}
}
