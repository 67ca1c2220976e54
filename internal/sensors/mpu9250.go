// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/orientation_streamer/internal/imu"
)

const standardGravity = 9.80665 // m/s²

// Full-scale ranges indexed by the MPU9250 range codes 0-3.
var (
	accelRangeG   = [...]float64{2, 4, 8, 16}
	gyroRangeDPS  = [...]float64{250, 500, 1000, 2000}
	rawFullScale  = float64(math.MaxInt16) + 1
	radiansPerDeg = math.Pi / 180
)

// MPU9250Options selects the SPI wiring and sensor ranges.
type MPU9250Options struct {
	SPIDevice  string // e.g. /dev/spidev6.0
	CSPin      string // GPIO name of the chip select
	AccelRange byte   // 0-3: ±2/4/8/16 g
	GyroRange  byte   // 0-3: ±250/500/1000/2000 °/s
}

// MPU9250 reads accelerometer and gyroscope registers over SPI. Every
// ReadSample is a blocking bus transaction; wrap it with NewBounded.
type MPU9250 struct {
	dev   *mpu9250.MPU9250
	scale scale
}

// scale converts raw register counts to SI units.
type scale struct {
	accel float64 // m/s² per count
	gyro  float64 // rad/s per count
}

func newScale(accelRange, gyroRange byte) (scale, error) {
	if int(accelRange) >= len(accelRangeG) {
		return scale{}, errors.Errorf("sensors: accel range code %d out of 0-3", accelRange)
	}
	if int(gyroRange) >= len(gyroRangeDPS) {
		return scale{}, errors.Errorf("sensors: gyro range code %d out of 0-3", gyroRange)
	}
	return scale{
		accel: accelRangeG[accelRange] * standardGravity / rawFullScale,
		gyro:  gyroRangeDPS[gyroRange] * radiansPerDeg / rawFullScale,
	}, nil
}

func (s scale) sample(ax, ay, az, gx, gy, gz int16) imu.Sample {
	return imu.Sample{
		Accel: r3.Vector{X: float64(ax), Y: float64(ay), Z: float64(az)}.Mul(s.accel),
		Gyro:  r3.Vector{X: float64(gx), Y: float64(gy), Z: float64(gz)}.Mul(s.gyro),
	}
}

// OpenMPU9250 initializes the IMU. Any failure here is fatal for the
// caller; the device is never retried lazily.
func OpenMPU9250(logger *zap.SugaredLogger, opts MPU9250Options) (*MPU9250, error) {
	sc, err := newScale(opts.AccelRange, opts.GyroRange)
	if err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "sensors: periph host init")
	}

	cs := gpioreg.ByName(opts.CSPin)
	if cs == nil {
		return nil, errors.Errorf("sensors: CS pin %q not found", opts.CSPin)
	}
	tr, err := mpu9250.NewSpiTransport(opts.SPIDevice, cs)
	if err != nil {
		return nil, errors.Wrapf(err, "sensors: SPI transport (%s)", opts.SPIDevice)
	}
	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, errors.Wrap(err, "sensors: mpu9250 device")
	}
	if err := dev.Init(); err != nil {
		return nil, errors.Wrap(err, "sensors: mpu9250 init")
	}
	if err := dev.SetAccelRange(opts.AccelRange); err != nil {
		return nil, errors.Wrap(err, "sensors: set accel range")
	}
	if err := dev.SetGyroRange(opts.GyroRange); err != nil {
		return nil, errors.Wrap(err, "sensors: set gyro range")
	}

	if res, err := dev.SelfTest(); err != nil {
		logger.Warnw("mpu9250 self-test failed", "error", err)
	} else {
		logger.Debugw("mpu9250 self-test", "result", res)
	}
	logger.Infow("mpu9250 ready",
		"spi", opts.SPIDevice,
		"accel_range_g", accelRangeG[opts.AccelRange],
		"gyro_range_dps", gyroRangeDPS[opts.GyroRange])

	return &MPU9250{dev: dev, scale: sc}, nil
}

// ReadSample reads one synchronized accel + gyro sample.
func (m *MPU9250) ReadSample() (imu.Sample, error) {
	var raw [6]int16
	reads := [...]struct {
		name string
		fn   func() (int16, error)
	}{
		{"accel X", m.dev.GetAccelerationX},
		{"accel Y", m.dev.GetAccelerationY},
		{"accel Z", m.dev.GetAccelerationZ},
		{"gyro X", m.dev.GetRotationX},
		{"gyro Y", m.dev.GetRotationY},
		{"gyro Z", m.dev.GetRotationZ},
	}
	for i, r := range reads {
		v, err := r.fn()
		if err != nil {
			return imu.Sample{}, errors.Wrapf(err, "sensors: mpu9250 %s", r.name)
		}
		raw[i] = v
	}
	return m.scale.sample(raw[0], raw[1], raw[2], raw[3], raw[4], raw[5]), nil
}

// Close releases nothing today; the periph SPI port stays open for the
// process lifetime.
func (m *MPU9250) Close() error { return nil }
