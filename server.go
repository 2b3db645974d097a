// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1Seven3Seven/netlib/queue"
	"github.com/creachadair/taskgroup"
)

// An accepted connection waiting to be admitted into the registry.
// Ownership passes from the accept loop, through the pending queue, to
// DrainNewConnections.
type accepted struct {
	conn *Conn
	addr string
}

// A Server owns a listening stream socket, an accept loop producing pending
// connections, and a registry of admitted peers keyed by remote address.
//
// The accept loop never touches the registry: it pushes accepted
// connections onto a pending queue, and the caller admits them with
// DrainNewConnections. The registry is therefore only mutated by the
// caller's own goroutine, and messages from each peer arrive on that peer's
// own queue in wire order.
type Server struct {
	cfg     Config
	codec   Codec
	lst     *net.TCPListener
	pending *queue.Queue[accepted]

	mu      sync.Mutex
	peers   map[string]*Conn
	stop    chan struct{}
	stopped bool
	tasks   *taskgroup.Group
	closed  bool
}

// NewServer binds a listening socket as described by cfg and returns a
// Server ready to accept connections. Invalid parameters are reported as a
// *ConfigError; an unavailable address or port as a wrapped error from the
// bind call.
func NewServer(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.checkValid(); err != nil {
		return nil, err
	}
	addr := &net.TCPAddr{IP: cfg.bindIP(), Port: cfg.Port}
	lst, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return &Server{
		cfg:     cfg,
		codec:   cfg.codec(),
		lst:     lst,
		pending: queue.New[accepted](),
		peers:   make(map[string]*Conn),
	}, nil
}

// Addr reports the listener's bound address. With an Ephemeral port config
// this is where clients should connect.
func (s *Server) Addr() net.Addr { return s.lst.Addr() }

// ListenForConnections starts the accept loop. It is a no-op if the loop is
// already running or the server is closed.
func (s *Server) ListenForConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.tasks != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = false
	s.tasks = taskgroup.New(nil)

	stop := s.stop
	s.tasks.Go(func() error {
		s.acceptLoop(stop)
		return nil
	})
}

// StopListeningForConnections signals the accept loop to stop and blocks
// until it has exited. Already-accepted peers are unaffected. It is a no-op
// if the loop is not running.
func (s *Server) StopListeningForConnections() {
	s.mu.Lock()
	g := s.tasks
	if g == nil {
		s.mu.Unlock()
		return
	}
	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
	s.mu.Unlock()

	g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks == g {
		s.tasks = nil
	}
}

// acceptLoop admits at most one pending connection per readiness poll,
// transferring each to the pending queue.
func (s *Server) acceptLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		s.lst.SetDeadline(time.Now().Add(s.cfg.PollTimeout))
		nc, err := s.lst.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			// Listener closed or failed; either way the loop is done.
			return
		}
		connMetrics.connsAccepted.Add(1)
		s.pending.Add(accepted{
			conn: newConn(nc, s.codec, s.cfg.PollTimeout),
			addr: nc.RemoteAddr().String(),
		})
	}
}

// DrainNewConnections admits every pending connection into the registry and
// returns the newly admitted peers in acceptance order. If a peer address
// reconnects, the previous connection is dropped in favor of the new one.
func (s *Server) DrainNewConnections() []string {
	news := s.pending.Drain()
	if len(news) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(news))
	for _, a := range news {
		if old, ok := s.peers[a.addr]; ok {
			old.StopReceiving()
			old.Close()
		}
		s.peers[a.addr] = a.conn
		out = append(out, a.addr)
	}
	return out
}

// ListenForMessages starts a receive loop for every registered peer that
// does not already have one. Running loops are never restarted; the call is
// safe to repeat, including after DrainNewConnections admits new peers.
func (s *Server) ListenForMessages() {
	for _, c := range s.conns() {
		c.StartReceiving()
	}
}

// StopListeningForMessages stops every peer's receive loop and blocks until
// all of them have exited.
func (s *Server) StopListeningForMessages() {
	for _, c := range s.conns() {
		c.StopReceiving()
	}
}

// MessagesFrom drains the queued messages from the given peer, in arrival
// order. It reports ErrUnknownPeer if the peer is not registered.
func (s *Server) MessagesFrom(peer string) ([]string, error) {
	c, err := s.lookup(peer)
	if err != nil {
		return nil, err
	}
	return c.Messages(), nil
}

// AllMessages drains the queued messages of every registered peer,
// returning a map from peer address to that peer's messages in arrival
// order. Peers with nothing queued are omitted.
func (s *Server) AllMessages() map[string][]string {
	out := make(map[string][]string)
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, c := range s.peers {
		if msgs := c.Messages(); len(msgs) != 0 {
			out[addr] = msgs
		}
	}
	return out
}

// SendTo sends msg to the given peer. It reports ErrUnknownPeer if the peer
// is not registered, and a *SendError on transport failure.
func (s *Server) SendTo(peer, msg string) error {
	c, err := s.lookup(peer)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendToAll sends msg to every registered peer. A failure for one peer does
// not prevent delivery to the others; if any peer fails, the result is a
// *BroadcastError listing exactly the peers that failed.
func (s *Server) SendToAll(msg string) error {
	var failed map[string]error
	for _, c := range s.conns() {
		if err := c.Send(msg); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[c.RemoteAddr()] = err
		}
	}
	if failed != nil {
		return &BroadcastError{Failed: failed}
	}
	return nil
}

// DropPeer stops the peer's receive loop, releases its socket, and removes
// it from the registry. It reports ErrUnknownPeer if the peer is not
// registered.
func (s *Server) DropPeer(peer string) error {
	c, err := s.lookup(peer)
	if err != nil {
		return err
	}
	c.StopReceiving()
	c.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peer)
	return nil
}

// Peers reports the addresses of all registered peers, in no particular
// order.
func (s *Server) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.peers))
	for addr := range s.peers {
		out = append(out, addr)
	}
	return out
}

// Close stops the accept loop and every receive loop, releases all peer
// sockets including ones still pending admission, and closes the listener.
// A closed server cannot be restarted.
func (s *Server) Close() error {
	s.StopListeningForConnections()

	for _, a := range s.pending.Drain() {
		a.conn.Close()
	}
	for _, c := range s.conns() {
		c.StopReceiving()
		c.Close()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = make(map[string]*Conn)
	if s.closed {
		return nil
	}
	s.closed = true
	return s.lst.Close()
}

// conns snapshots the registered connections so lifecycle calls do not hold
// the registry lock while blocking on a loop join or a socket write.
func (s *Server) conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.peers))
	for _, c := range s.peers {
		out = append(out, c)
	}
	return out
}

func (s *Server) lookup(peer string) (*Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.peers[peer]
	if !ok {
		return nil, fmt.Errorf("peer %s: %w", peer, ErrUnknownPeer)
	}
	return c, nil
}
