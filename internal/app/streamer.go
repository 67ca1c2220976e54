// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/orientation_streamer/internal/config"
	"github.com/relabs-tech/orientation_streamer/internal/frame"
	"github.com/relabs-tech/orientation_streamer/internal/imu"
	"github.com/relabs-tech/orientation_streamer/internal/orientation"
	"github.com/relabs-tech/orientation_streamer/internal/sensors"
	"github.com/relabs-tech/orientation_streamer/internal/stream"
	"github.com/relabs-tech/orientation_streamer/internal/transport"
	"github.com/relabs-tech/orientation_streamer/internal/transport/ble"
	"github.com/relabs-tech/orientation_streamer/internal/transport/mqtt"
	"github.com/relabs-tech/orientation_streamer/internal/transport/ws"
)

const shutdownTimeout = 2 * time.Second

// RunStreamer opens the configured sample source and transport and
// streams until ctx is cancelled. Failing to open either is returned
// before anything is streamed.
func RunStreamer(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (err error) {
	logger.Infow("starting orientation streamer",
		"device", cfg.DeviceName,
		"source", cfg.SampleSource,
		"transport", cfg.Transport)

	src, closeSrc, err := openSource(logger, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeSrc()) }()

	tr, listen, err := openTransport(logger, cfg)
	if err != nil {
		return err
	}
	return runPipeline(ctx, cfg, logger, src, tr, listen)
}

// runPipeline runs the loop, the transport listener and the status API
// until ctx is done or one of them fails. tr is closed on the way out.
func runPipeline(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, src imu.Source, tr transport.Transport, listen func() error) error {
	loop, err := newLoop(logger, cfg, src, tr)
	if err != nil {
		return multierr.Append(err, tr.Close())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	if listen != nil {
		g.Go(listen)
	}

	var status *http.Server
	if cfg.StatusListenAddr != "" {
		status = &http.Server{
			Addr:              cfg.StatusListenAddr,
			Handler:           NewStatusHandler(loop, cfg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Infow("status API listening", "addr", cfg.StatusListenAddr)
			if err := status.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "status API")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		var errs error
		if status != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			errs = multierr.Append(errs, status.Shutdown(sctx))
			cancel()
		}
		return multierr.Append(errs, tr.Close())
	})

	err = g.Wait()
	snap := loop.Snapshot()
	logger.Infow("orientation streamer stopped",
		"ticks", snap.Ticks,
		"frames_sent", snap.FramesSent,
		"sensor_faults", snap.SensorFaults,
		"send_failures", snap.SendFailures)
	return err
}

func newLoop(logger *zap.SugaredLogger, cfg *config.Config, src imu.Source, tr transport.Transport) (*stream.Loop, error) {
	variant, err := frame.ParseVariant(cfg.FrameVariant)
	if err != nil {
		return nil, err
	}
	enc, err := frame.NewEncoder(variant, cfg.MaxFrameSize)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(cfg.SampleIntervalMS) * time.Millisecond
	filter, err := orientation.New(orientation.Options{
		SampleRate: float64(time.Second) / float64(interval),
		Beta:       cfg.FilterBeta,
	})
	if err != nil {
		return nil, err
	}
	return stream.New(logger, src, filter, enc, tr, stream.Options{
		Interval:         interval,
		SampleTimeout:    time.Duration(cfg.SampleTimeoutMS) * time.Millisecond,
		ResetOnReconnect: cfg.ResetOnReconnect,
	})
}

func openSource(logger *zap.SugaredLogger, cfg *config.Config) (imu.Source, func() error, error) {
	nop := func() error { return nil }
	switch cfg.SampleSource {
	case "sim":
		logger.Infow("using simulated sample source")
		return sensors.NewSim(clock.New()), nop, nil
	case "mpu9250":
		dev, err := sensors.OpenMPU9250(logger, sensors.MPU9250Options{
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			GyroRange:  cfg.IMUGyroRange,
		})
		if err != nil {
			return nil, nop, err
		}
		return sensors.NewBounded(dev), dev.Close, nil
	case "serial":
		s, err := sensors.OpenSerial(logger, sensors.SerialOptions{
			Port:     cfg.SerialPort,
			BaudRate: cfg.SerialBaudRate,
		})
		if err != nil {
			return nil, nop, err
		}
		return sensors.NewBounded(s), s.Close, nil
	default:
		return nil, nop, errors.Errorf("unknown sample source %q", cfg.SampleSource)
	}
}

// openTransport returns the transport and, for transports that accept
// connections, the function serving them.
func openTransport(logger *zap.SugaredLogger, cfg *config.Config) (transport.Transport, func() error, error) {
	switch cfg.Transport {
	case "ble":
		p, err := ble.Open(logger, ble.Options{
			DeviceName:  cfg.DeviceName,
			DeviceID:    cfg.BLEDeviceID,
			ServiceUUID: cfg.BLEServiceUUID,
			RXUUID:      cfg.BLERXUUID,
			TXUUID:      cfg.BLETXUUID,
			MaxPayload:  cfg.MaxFrameSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	case "websocket":
		s, err := ws.New(logger, ws.Options{MaxPayload: cfg.MaxFrameSize})
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return s.ListenAndServe(cfg.WSListenAddr, cfg.WSPath) }, nil
	case "mqtt":
		t, err := mqtt.Open(logger, mqtt.Options{
			Broker:        cfg.MQTTBroker,
			ClientID:      cfg.MQTTClientID,
			FramesTopic:   cfg.MQTTTopicFrames,
			CommandsTopic: cfg.MQTTTopicCommands,
			MaxPayload:    cfg.MaxFrameSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, nil, nil
	default:
		return nil, nil, errors.Errorf("unknown transport %q", cfg.Transport)
	}
}
