// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"io"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relabs-tech/orientation_streamer/internal/frame"
	"github.com/relabs-tech/orientation_streamer/internal/imu"
)

const maxLineLen = 1024

// SerialOptions selects the port of a microcontroller that prints one
// JSON sample per line, e.g. {"accel":{"x":..},"gyro":{"x":..},"time":..}.
type SerialOptions struct {
	Port     string
	BaudRate uint
}

// Serial reads newline-delimited JSON samples.
type Serial struct {
	port io.ReadCloser
	r    *bufio.Reader
}

// OpenSerial opens the port 8N1.
func OpenSerial(logger *zap.SugaredLogger, opts SerialOptions) (*Serial, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        opts.Port,
		BaudRate:        opts.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "sensors: open serial port %s", opts.Port)
	}
	logger.Infow("serial sample source ready", "port", opts.Port, "baud", opts.BaudRate)
	return newSerial(port), nil
}

func newSerial(port io.ReadCloser) *Serial {
	return &Serial{port: port, r: bufio.NewReaderSize(port, maxLineLen)}
}

// ReadSample blocks until a full line arrives. A line that is not a valid
// sample is an error for this read only.
func (s *Serial) ReadSample() (imu.Sample, error) {
	line, err := s.readLine()
	if err != nil {
		return imu.Sample{}, err
	}
	m, err := frame.Decode(line)
	if err != nil {
		return imu.Sample{}, errors.Wrap(err, "sensors: serial line")
	}
	sample, err := m.Sample()
	if err != nil {
		return imu.Sample{}, errors.Wrap(err, "sensors: serial line")
	}
	return sample, nil
}

func (s *Serial) readLine() ([]byte, error) {
	line, err := s.r.ReadSlice('\n')
	switch {
	case err == nil:
		return line, nil
	case errors.Is(err, bufio.ErrBufferFull):
		// skip the rest of the oversized line
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = s.r.ReadSlice('\n')
		}
		if err != nil {
			return nil, errors.Wrap(err, "sensors: serial read")
		}
		return nil, errors.Errorf("sensors: serial line longer than %d bytes", maxLineLen)
	default:
		return nil, errors.Wrap(err, "sensors: serial read")
	}
}

func (s *Serial) Close() error {
	return errors.Wrap(s.port.Close(), "sensors: close serial port")
}
