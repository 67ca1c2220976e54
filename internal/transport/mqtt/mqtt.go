// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mqtt publishes frames to an MQTT broker. The broker session is
// the one peer: it appears on connect and disappears when the connection
// is lost.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relabs-tech/orientation_streamer/internal/transport"
)

const defaultConnectTimeout = 5 * time.Second

// Options configures a Transport.
type Options struct {
	Broker         string
	ClientID       string
	FramesTopic    string
	CommandsTopic  string // optional; messages are logged and ignored
	MaxPayload     int
	ConnectTimeout time.Duration
}

// client is the part of paho.Client the transport uses.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesce uint)
}

// Transport implements transport.Transport over a paho client.
type Transport struct {
	log  *zap.SugaredLogger
	opts Options
	c    client

	mu       sync.Mutex
	peer     transport.PeerID
	online   bool
	sessions int
	closed   bool
}

var _ transport.Transport = (*Transport)(nil)

// Open connects to the broker. Failing to reach it is an initialization
// error; later connection loss is handled by paho's auto-reconnect.
func Open(logger *zap.SugaredLogger, opts Options) (*Transport, error) {
	t, err := newTransport(logger, opts)
	if err != nil {
		return nil, err
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(t.onConnectionLost)
	t.c = paho.NewClient(po)

	tok := t.c.Connect()
	if !tok.WaitTimeout(t.opts.ConnectTimeout) {
		t.c.Disconnect(0)
		return nil, errors.Errorf("mqtt: connect to %s timed out", opts.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt: connect to %s", opts.Broker)
	}
	logger.Infow("connected to MQTT broker", "broker", opts.Broker, "topic", opts.FramesTopic)
	return t, nil
}

func newTransport(logger *zap.SugaredLogger, opts Options) (*Transport, error) {
	if opts.Broker == "" || opts.FramesTopic == "" {
		return nil, errors.New("mqtt: broker and frames topic are required")
	}
	if opts.MaxPayload <= 0 {
		return nil, errors.Errorf("mqtt: max payload must be positive, got %d", opts.MaxPayload)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	return &Transport{log: logger, opts: opts}, nil
}

func (t *Transport) onConnect(paho.Client) {
	t.mu.Lock()
	t.sessions++
	t.peer = transport.PeerID(fmt.Sprintf("%s#%d", t.opts.Broker, t.sessions))
	t.online = true
	peer := t.peer
	t.mu.Unlock()

	t.log.Infow("broker session up", "peer", peer)
	if t.opts.CommandsTopic != "" {
		// Handlers run on paho's goroutine; never wait on tokens here.
		t.c.Subscribe(t.opts.CommandsTopic, 0, t.onCommand)
	}
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.mu.Lock()
	peer := t.peer
	t.online = false
	t.mu.Unlock()
	t.log.Infow("broker session lost", "peer", peer, "error", err)
}

func (t *Transport) onCommand(_ paho.Client, msg paho.Message) {
	t.log.Debugw("ignoring inbound command", "topic", msg.Topic(), "bytes", len(msg.Payload()))
}

func (t *Transport) Peer() (transport.PeerID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peer, t.online && !t.closed
}

// Send publishes at QoS 0 without waiting for the network. An error the
// client reports synchronously is returned; anything later is not.
func (t *Transport) Send(peer transport.PeerID, b []byte) error {
	if err := transport.CheckPayload(b, t.opts.MaxPayload); err != nil {
		return err
	}
	t.mu.Lock()
	closed, current := t.closed, t.online && t.peer == peer
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if !current {
		return transport.ErrPeerGone
	}

	tok := t.c.Publish(t.opts.FramesTopic, 0, false, append([]byte(nil), b...))
	select {
	case <-tok.Done():
		return errors.Wrap(tok.Error(), "mqtt: publish")
	default:
		return nil
	}
}

func (t *Transport) MaxPayload() int { return t.opts.MaxPayload }

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.online = false
	t.mu.Unlock()

	t.c.Disconnect(250)
	return nil
}
