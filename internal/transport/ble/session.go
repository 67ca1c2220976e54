// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ble exposes frames as notifications of a GATT characteristic,
// laid out like the Nordic UART Service: the peer subscribes to TX and
// anything it writes to RX is ignored.
package ble

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/relabs-tech/orientation_streamer/internal/transport"
)

const queueLen = 4

// notifier is the subscription handle gatt hands to a notify handler.
type notifier interface {
	Write(data []byte) (int, error)
	Done() bool
	Cap() int
}

// peripheral tracks the single subscribed central. It holds everything
// but the radio, so it builds on every platform.
type peripheral struct {
	log *zap.SugaredLogger
	max int

	mu     sync.Mutex
	cur    *session
	seq    int
	closed bool
}

type session struct {
	id      transport.PeerID
	central string
	n       notifier
	out     chan []byte
	done    chan struct{}
	once    sync.Once
}

func newPeripheral(logger *zap.SugaredLogger, maxPayload int) *peripheral {
	return &peripheral{log: logger, max: maxPayload}
}

// subscribe starts a session for central; a previous session, if any,
// ends.
func (p *peripheral) subscribe(central string, n notifier) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	prev := p.cur
	p.seq++
	s := &session{
		id:      transport.PeerID(fmt.Sprintf("%s/%d", central, p.seq)),
		central: central,
		n:       n,
		out:     make(chan []byte, queueLen),
		done:    make(chan struct{}),
	}
	p.cur = s
	p.mu.Unlock()

	if prev != nil {
		prev.end()
	}
	p.log.Infow("peer subscribed", "peer", s.id, "cap", n.Cap())
	go p.notifyLoop(s)
}

// disconnect ends the session of central, if it is the current one.
func (p *peripheral) disconnect(central string) {
	p.mu.Lock()
	s := p.cur
	if s == nil || s.central != central {
		p.mu.Unlock()
		return
	}
	p.cur = nil
	p.mu.Unlock()

	s.end()
	p.log.Infow("peer disconnected", "peer", s.id)
}

func (p *peripheral) notifyLoop(s *session) {
	for {
		select {
		case b := <-s.out:
			if _, err := s.n.Write(b); err != nil {
				p.log.Debugw("notify failed", "peer", s.id, "error", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) end() {
	s.once.Do(func() { close(s.done) })
}

func (p *peripheral) Peer() (transport.PeerID, bool) {
	p.mu.Lock()
	s := p.cur
	if s != nil && s.n.Done() {
		// unsubscribed without a disconnect event
		p.cur = nil
		p.mu.Unlock()
		s.end()
		p.log.Infow("peer unsubscribed", "peer", s.id)
		return "", false
	}
	p.mu.Unlock()
	if s == nil {
		return "", false
	}
	return s.id, true
}

func (p *peripheral) Send(peer transport.PeerID, b []byte) error {
	if err := transport.CheckPayload(b, p.max); err != nil {
		return err
	}
	p.mu.Lock()
	s, closed := p.cur, p.closed
	p.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if s == nil || s.id != peer || s.n.Done() {
		return transport.ErrPeerGone
	}
	if err := transport.CheckPayload(b, s.n.Cap()); err != nil {
		return err
	}

	select {
	case s.out <- append([]byte(nil), b...):
		return nil
	default:
		return transport.ErrBusy
	}
}

func (p *peripheral) MaxPayload() int { return p.max }

// dropCurrent ends the current session, whoever it belongs to.
func (p *peripheral) dropCurrent() {
	p.mu.Lock()
	s := p.cur
	p.cur = nil
	p.mu.Unlock()
	if s != nil {
		s.end()
		p.log.Infow("peer dropped", "peer", s.id)
	}
}

// shutdown ends the current session and refuses new ones.
func (p *peripheral) shutdown() {
	p.mu.Lock()
	p.closed = true
	s := p.cur
	p.cur = nil
	p.mu.Unlock()
	if s != nil {
		s.end()
	}
}
