// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ble

import (
	"strings"

	"github.com/pkg/errors"
)

// Nordic UART Service identity.
const (
	DefaultServiceUUID = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"
	DefaultRXUUID      = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E"
	DefaultTXUUID      = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E"
)

// Options configures a Peripheral.
type Options struct {
	DeviceName  string
	DeviceID    int // HCI adapter index, -1 picks the first one
	ServiceUUID string
	RXUUID      string
	TXUUID      string
	MaxPayload  int
}

func (o Options) validate() error {
	if strings.TrimSpace(o.DeviceName) == "" {
		return errors.New("ble: device name is required")
	}
	if o.MaxPayload <= 0 {
		return errors.Errorf("ble: max payload must be positive, got %d", o.MaxPayload)
	}
	return nil
}
