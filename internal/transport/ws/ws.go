// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ws streams frames to a single websocket client.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"goji.io"
	"goji.io/pat"

	"github.com/relabs-tech/orientation_streamer/internal/transport"
)

const (
	defaultQueueLen     = 4
	defaultWriteTimeout = time.Second
	inboundReadLimit    = 4096
)

// Options configures a Server.
type Options struct {
	MaxPayload   int
	QueueLen     int
	WriteTimeout time.Duration
}

// Server accepts one websocket client at a time and implements
// transport.Transport. While a client is connected further upgrade
// requests are answered with 409 Conflict.
type Server struct {
	log      *zap.SugaredLogger
	opts     Options
	upgrader websocket.Upgrader

	mu     sync.Mutex
	busy   bool
	cur    *peerConn
	closed bool
	srv    *http.Server
}

type peerConn struct {
	id   transport.PeerID
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

var _ transport.Transport = (*Server)(nil)

// New returns a server with no client.
func New(logger *zap.SugaredLogger, opts Options) (*Server, error) {
	if opts.MaxPayload <= 0 {
		return nil, errors.Errorf("ws: max payload must be positive, got %d", opts.MaxPayload)
	}
	if opts.QueueLen <= 0 {
		opts.QueueLen = defaultQueueLen
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Server{
		log:  logger,
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

// ListenAndServe serves the websocket endpoint at path until Close.
func (s *Server) ListenAndServe(addr, path string) error {
	mux := goji.NewMux()
	mux.Handle(pat.Get(path), s)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	s.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	srv := s.srv
	s.mu.Unlock()

	s.log.Infow("websocket transport listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "ws: listen")
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	case s.busy:
		s.mu.Unlock()
		http.Error(w, "a peer is already connected", http.StatusConflict)
		return
	}
	s.busy = true
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.Debugw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		return
	}
	conn.SetReadLimit(inboundReadLimit)

	c := &peerConn{
		id:   transport.PeerID(uuid.NewString()),
		ws:   conn,
		out:  make(chan []byte, s.opts.QueueLen),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.cur = c
	s.mu.Unlock()

	s.log.Infow("peer connected", "peer", c.id, "remote", r.RemoteAddr)
	go s.writeLoop(c)
	go s.readLoop(c)
}

func (s *Server) writeLoop(c *peerConn) {
	for {
		select {
		case b := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				s.log.Debugw("write failed", "peer", c.id, "error", err)
				s.drop(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop discards everything the client sends and notices when it goes
// away.
func (s *Server) readLoop(c *peerConn) {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			s.drop(c)
			return
		}
		s.log.Debugw("ignoring inbound message", "peer", c.id, "bytes", len(msg))
	}
}

func (s *Server) drop(c *peerConn) {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
	s.mu.Lock()
	if s.cur == c {
		s.cur = nil
		s.busy = false
		s.log.Infow("peer disconnected", "peer", c.id)
	}
	s.mu.Unlock()
}

func (s *Server) Peer() (transport.PeerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return "", false
	}
	return s.cur.id, true
}

func (s *Server) Send(peer transport.PeerID, b []byte) error {
	if err := transport.CheckPayload(b, s.opts.MaxPayload); err != nil {
		return err
	}
	s.mu.Lock()
	c, closed := s.cur, s.closed
	s.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if c == nil || c.id != peer {
		return transport.ErrPeerGone
	}

	msg := append([]byte(nil), b...)
	select {
	case <-c.done:
		return transport.ErrPeerGone
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return transport.ErrBusy
	}
}

func (s *Server) MaxPayload() int { return s.opts.MaxPayload }

// Close disconnects the client and stops the listener, if any.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	c, srv := s.cur, s.srv
	s.mu.Unlock()

	if c != nil {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(s.opts.WriteTimeout))
		s.drop(c)
	}
	if srv != nil {
		return errors.Wrap(srv.Close(), "ws: close listener")
	}
	return nil
}
