// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stream runs the fixed-cadence loop that turns samples into
// frames for the connected peer.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/orientation_streamer/internal/frame"
	"github.com/relabs-tech/orientation_streamer/internal/imu"
	"github.com/relabs-tech/orientation_streamer/internal/orientation"
	"github.com/relabs-tech/orientation_streamer/internal/transport"
)

const DefaultInterval = 10 * time.Millisecond

// Options configures a Loop.
type Options struct {
	// Interval between tick starts. Defaults to DefaultInterval.
	Interval time.Duration
	// SampleTimeout bounds each sensor read. Defaults to Interval.
	SampleTimeout time.Duration
	// ResetOnReconnect puts the filter back at identity whenever a peer
	// connects. Off by default so the estimate carries across reconnects.
	ResetOnReconnect bool
	// Clock drives the cadence. Defaults to the wall clock.
	Clock clock.Clock
}

// Loop owns the filter and the connection state. Only the goroutine
// calling Step or Run touches them; Snapshot is safe from anywhere.
type Loop struct {
	log    *zap.SugaredLogger
	src    imu.Source
	filter *orientation.Filter
	enc    *frame.Encoder
	tr     transport.Transport
	opts   Options
	start  time.Time

	buf      []byte
	state    State
	peer     transport.PeerID
	faultLog *rate.Limiter

	mu   sync.Mutex
	snap Snapshot

	// waitHook, when set, runs after each inter-tick timer is armed.
	waitHook func(time.Duration)
}

// New wires a loop. The encoder's worst-case frame must fit the
// transport payload.
func New(logger *zap.SugaredLogger, src imu.Source, filter *orientation.Filter, enc *frame.Encoder, tr transport.Transport, opts Options) (*Loop, error) {
	if src == nil || filter == nil || enc == nil || tr == nil {
		return nil, errors.New("stream: source, filter, encoder and transport are required")
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Interval < 0 {
		return nil, errors.Errorf("stream: negative interval %s", opts.Interval)
	}
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = opts.Interval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if ws, limit := enc.WorstCaseSize(), tr.MaxPayload(); ws > limit {
		return nil, errors.Errorf("stream: %s frames need up to %d bytes, transport carries %d", enc.Variant(), ws, limit)
	}

	return &Loop{
		log:      logger,
		src:      src,
		filter:   filter,
		enc:      enc,
		tr:       tr,
		opts:     opts,
		start:    opts.Clock.Now(),
		buf:      make([]byte, 0, enc.WorstCaseSize()),
		faultLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// Run ticks until ctx is done, then returns nil.
//
// Tick n is due at start + n·Interval. A tick that overruns its deadline
// is followed immediately by the next one and the schedule restarts from
// there; missed ticks are never made up.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Infow("streaming loop started",
		"interval", l.opts.Interval,
		"variant", l.enc.Variant(),
		"reset_on_reconnect", l.opts.ResetOnReconnect)

	clk := l.opts.Clock
	next := clk.Now()
	for {
		if ctx.Err() != nil {
			l.log.Infow("streaming loop stopped", "ticks", l.Snapshot().Ticks)
			return nil
		}
		l.Step(ctx)

		next = next.Add(l.opts.Interval)
		now := clk.Now()
		if !next.After(now) {
			next = now
			continue
		}
		l.wait(ctx, next.Sub(now))
	}
}

func (l *Loop) wait(ctx context.Context, d time.Duration) {
	t := l.opts.Clock.Timer(d)
	defer t.Stop()
	if l.waitHook != nil {
		l.waitHook(d)
	}
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Step runs one tick: observe the peer once, then, while streaming, read,
// fuse, encode and send.
func (l *Loop) Step(ctx context.Context) {
	peer, ok := l.tr.Peer()
	l.observe(peer, ok)

	if l.state == Streaming {
		l.stream(ctx)
	}

	l.mu.Lock()
	l.snap.Ticks++
	l.snap.State = l.state
	l.snap.Peer = l.peer
	l.mu.Unlock()
}

func (l *Loop) observe(peer transport.PeerID, ok bool) {
	switch {
	case l.state == Idle && ok:
		l.connect(peer)
	case l.state == Streaming && !ok:
		l.disconnect()
	case l.state == Streaming && peer != l.peer:
		l.disconnect()
		l.connect(peer)
	}
}

func (l *Loop) connect(peer transport.PeerID) {
	l.state, l.peer = Streaming, peer
	if l.opts.ResetOnReconnect {
		l.filter.Reset()
	}
	l.mu.Lock()
	l.snap.Connects++
	l.mu.Unlock()
	l.log.Infow("peer connected, streaming", "peer", peer)
}

func (l *Loop) disconnect() {
	l.log.Infow("peer gone, idle", "peer", l.peer)
	l.state, l.peer = Idle, ""
}

func (l *Loop) stream(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, l.opts.SampleTimeout)
	s, err := l.src.Read(rctx)
	cancel()
	if err != nil {
		l.fault(ctx, err)
		return
	}
	pose, err := l.filter.Update(s)
	if err != nil {
		l.fault(ctx, err)
		return
	}

	ms := uint32(l.opts.Clock.Since(l.start).Milliseconds())
	l.buf = l.enc.Append(l.buf[:0], pose, s, ms)
	sendErr := l.tr.Send(l.peer, l.buf)

	l.mu.Lock()
	l.snap.Pose, l.snap.HavePose = pose, true
	if sendErr != nil {
		l.snap.SendFailures++
	} else {
		l.snap.FramesSent++
	}
	l.mu.Unlock()

	if sendErr != nil {
		l.log.Debugw("send failed, frame dropped", "peer", l.peer, "error", sendErr)
	}
}

func (l *Loop) fault(ctx context.Context, err error) {
	l.mu.Lock()
	l.snap.SensorFaults++
	n := l.snap.SensorFaults
	l.mu.Unlock()

	if ctx.Err() == nil && l.faultLog.Allow() {
		l.log.Warnw("sensor fault, tick skipped", "error", err, "faults", n)
	}
}

// Snapshot returns the loop's state as of the last completed tick.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}
