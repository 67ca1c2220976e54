// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relabs-tech/orientation_streamer/internal/config"
	"github.com/relabs-tech/orientation_streamer/internal/frame"
)

// RunMonitor subscribes to the frames topic on the configured broker and
// prints every frame to out until ctx is cancelled.
func RunMonitor(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, out io.Writer) error {
	opts := paho.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-monitor")

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "monitor: connect to %s", cfg.MQTTBroker)
	}
	defer client.Disconnect(250)
	logger.Infow("monitor connected", "broker", cfg.MQTTBroker)

	token := client.Subscribe(cfg.MQTTTopicFrames, 0, func(_ paho.Client, msg paho.Message) {
		if err := printFrame(out, msg.Payload()); err != nil {
			logger.Warnw("bad frame", "topic", msg.Topic(), "error", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return errors.Wrapf(token.Error(), "monitor: subscribe %s", cfg.MQTTTopicFrames)
	}
	logger.Infow("monitor subscribed", "topic", cfg.MQTTTopicFrames)

	<-ctx.Done()
	logger.Infow("monitor shutting down")
	return nil
}

// printFrame renders one frame as a console line, plus a second line for
// the raw sample when the frame carries one.
func printFrame(out io.Writer, payload []byte) error {
	m, err := frame.Decode(payload)
	if err != nil {
		return err
	}
	p, err := m.Pose()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "[POSE]  ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f\n", p.Roll, p.Pitch, p.Yaw); err != nil {
		return err
	}

	s, err := m.Sample()
	if errors.Is(err, frame.ErrMissingField) {
		return nil
	}
	if err != nil {
		return err
	}
	var ms int64
	if m.Time != nil {
		ms = *m.Time
	}
	_, err = fmt.Fprintf(out, "[RAW ]  ax=%7.2f ay=%7.2f az=%7.2f  gx=%6.2f gy=%6.2f gz=%6.2f  t=%dms\n",
		s.Accel.X, s.Accel.Y, s.Accel.Z, s.Gyro.X, s.Gyro.Y, s.Gyro.Z, ms)
	return err
}
