// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build !linux

package ble

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Peripheral is only available on Linux.
type Peripheral struct {
	*peripheral
}

// Open always fails off Linux; the HCI backend is Linux only.
func Open(*zap.SugaredLogger, Options) (*Peripheral, error) {
	return nil, errors.New("ble: transport requires linux")
}

func (p *Peripheral) Close() error {
	p.shutdown()
	return nil
}
