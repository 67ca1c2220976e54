// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build linux

package ble

import (
	"time"

	"github.com/paypal/gatt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relabs-tech/orientation_streamer/internal/transport"
)

const poweredOnTimeout = 10 * time.Second

// Peripheral advertises the service on the local HCI adapter and serves a
// single central.
type Peripheral struct {
	*peripheral
	dev gatt.Device
}

var _ transport.Transport = (*Peripheral)(nil)

// Open brings up the adapter and starts advertising. It fails when the
// adapter does not power on in time.
func Open(logger *zap.SugaredLogger, opts Options) (*Peripheral, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	svc, err := newService(opts)
	if err != nil {
		return nil, err
	}

	dev, err := gatt.NewDevice(gatt.LnxMaxConnections(1), gatt.LnxDeviceID(opts.DeviceID, true))
	if err != nil {
		return nil, errors.Wrap(err, "ble: open HCI device")
	}
	p := &Peripheral{peripheral: newPeripheral(logger, opts.MaxPayload), dev: dev}

	svc.tx.HandleNotifyFunc(func(r gatt.Request, n gatt.Notifier) {
		p.subscribe(r.Central.ID(), n)
	})
	svc.rx.HandleWriteFunc(func(r gatt.Request, data []byte) byte {
		logger.Debugw("ignoring inbound write", "central", r.Central.ID(), "bytes", len(data))
		return gatt.StatusSuccess
	})

	dev.Handle(
		gatt.CentralConnected(func(c gatt.Central) {
			logger.Infow("central connected", "central", c.ID(), "mtu", c.MTU())
		}),
		gatt.CentralDisconnected(func(c gatt.Central) {
			p.disconnect(c.ID())
		}),
	)

	ready := make(chan error, 1)
	err = dev.Init(func(d gatt.Device, s gatt.State) {
		logger.Infow("adapter state changed", "state", s)
		if s != gatt.StatePoweredOn {
			p.dropCurrent()
			return
		}
		err := d.AddService(svc.s)
		if err == nil {
			err = d.AdvertiseNameAndServices(opts.DeviceName, []gatt.UUID{svc.s.UUID()})
		}
		select {
		case ready <- err:
		default:
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "ble: init device")
	}

	select {
	case err := <-ready:
		if err != nil {
			return nil, errors.Wrap(err, "ble: advertise")
		}
	case <-time.After(poweredOnTimeout):
		return nil, errors.Errorf("ble: adapter hci%d did not power on within %s", opts.DeviceID, poweredOnTimeout)
	}
	logger.Infow("advertising", "name", opts.DeviceName, "service", opts.ServiceUUID)
	return p, nil
}

type service struct {
	s      *gatt.Service
	rx, tx *gatt.Characteristic
}

func newService(opts Options) (*service, error) {
	var uuids [3]gatt.UUID
	for i, u := range []string{opts.ServiceUUID, opts.RXUUID, opts.TXUUID} {
		parsed, err := gatt.ParseUUID(u)
		if err != nil {
			return nil, errors.Wrapf(err, "ble: bad UUID %q", u)
		}
		uuids[i] = parsed
	}
	s := gatt.NewService(uuids[0])
	return &service{
		s:  s,
		rx: s.AddCharacteristic(uuids[1]),
		tx: s.AddCharacteristic(uuids[2]),
	}, nil
}

// Close stops advertising and drops the central.
func (p *Peripheral) Close() error {
	p.shutdown()
	return multierr.Combine(
		errors.Wrap(p.dev.StopAdvertising(), "ble: stop advertising"),
		errors.Wrap(p.dev.RemoveAllServices(), "ble: remove services"),
	)
}
