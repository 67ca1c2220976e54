// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors provides the sample sources the streamer reads from: an
// SPI MPU9250, a serial line carrying JSON samples, and a simulator.
package sensors

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/relabs-tech/orientation_streamer/internal/imu"
)

// BlockingReader is a driver call that blocks until a sample is read.
type BlockingReader interface {
	ReadSample() (imu.Sample, error)
}

// Bounded turns a BlockingReader into an imu.Source whose Read honours
// the context deadline. At most one driver call is in flight; a call
// that outlives its deadline keeps running and the next Read picks it up
// if it is still in progress. A result that arrived after its caller gave
// up is stale and is dropped.
type Bounded struct {
	r BlockingReader

	mu      sync.Mutex
	pending chan result
}

type result struct {
	s   imu.Sample
	err error
}

var _ imu.Source = (*Bounded)(nil)

func NewBounded(r BlockingReader) *Bounded {
	return &Bounded{r: r}
}

func (b *Bounded) Read(ctx context.Context) (imu.Sample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending != nil {
		select {
		case <-b.pending:
			b.pending = nil
		default:
		}
	}
	if b.pending == nil {
		ch := make(chan result, 1)
		b.pending = ch
		go func() {
			s, err := b.r.ReadSample()
			ch <- result{s: s, err: err}
		}()
	}

	select {
	case r := <-b.pending:
		b.pending = nil
		return r.s, r.err
	case <-ctx.Done():
		return imu.Sample{}, errors.Wrap(ctx.Err(), "sensors: read")
	}
}
