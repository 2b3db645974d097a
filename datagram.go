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

// MaxDatagramSize is the largest payload accepted for a single datagram:
// the IPv4 UDP maximum of 65535 minus the IP and UDP headers.
const MaxDatagramSize = 65507

// A Datagram is one received message together with its sender's address.
// Datagram transports preserve message boundaries, so no length prefix is
// used on the wire; the payload is the raw UTF-8 text.
type Datagram struct {
	Message string
	Addr    *net.UDPAddr
}

// An Endpoint owns one datagram socket. A background receive loop queues
// each arriving datagram, tagged with its sender, for the owner to drain;
// sends are synchronous on the caller's goroutine.
type Endpoint struct {
	pc    *net.UDPConn
	poll  time.Duration
	recvQ *queue.Queue[Datagram]

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
	tasks   *taskgroup.Group
	closed  bool
}

// NewEndpoint binds a datagram socket as described by cfg. The HeaderWidth
// and MaxPayload fields are ignored: datagrams are self-delimiting and
// bounded by MaxDatagramSize.
func NewEndpoint(cfg Config) (*Endpoint, error) {
	cfg = cfg.withDefaults()
	if err := cfg.checkValid(); err != nil {
		return nil, err
	}
	addr := &net.UDPAddr{IP: cfg.bindIP(), Port: cfg.Port}
	pc, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return &Endpoint{
		pc:    pc,
		poll:  cfg.PollTimeout,
		recvQ: queue.New[Datagram](),
	}, nil
}

// Addr reports the socket's bound address.
func (e *Endpoint) Addr() *net.UDPAddr { return e.pc.LocalAddr().(*net.UDPAddr) }

// ListenForMessages starts the receive loop. It is a no-op if the loop is
// already running or the endpoint is closed.
func (e *Endpoint) ListenForMessages() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.tasks != nil {
		return
	}
	e.stop = make(chan struct{})
	e.stopped = false
	e.tasks = taskgroup.New(nil)

	stop := e.stop
	e.tasks.Go(func() error {
		e.receive(stop)
		return nil
	})
}

// StopListeningForMessages signals the receive loop to stop and blocks
// until it has exited, bounded by one poll interval. It is a no-op if no
// loop is running.
func (e *Endpoint) StopListeningForMessages() {
	e.mu.Lock()
	g := e.tasks
	if g == nil {
		e.mu.Unlock()
		return
	}
	if !e.stopped {
		e.stopped = true
		close(e.stop)
	}
	e.mu.Unlock()

	g.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tasks == g {
		e.tasks = nil
	}
}

// Messages drains and returns all datagrams received so far, in arrival
// order. It never blocks; with nothing queued it returns nil.
func (e *Endpoint) Messages() []Datagram { return e.recvQ.Drain() }

// Send transmits msg as a single datagram to addr. Payloads over
// MaxDatagramSize are rejected with ErrMessageTooLarge; transport failures
// are reported as a *SendError.
func (e *Endpoint) Send(msg string, addr *net.UDPAddr) error {
	if len(msg) > MaxDatagramSize {
		return fmt.Errorf("payload %d bytes: %w", len(msg), ErrMessageTooLarge)
	}
	if _, err := e.pc.WriteToUDP([]byte(msg), addr); err != nil {
		return &SendError{Peer: addr.String(), Err: err}
	}
	connMetrics.datagramsOut.Add(1)
	return nil
}

// Close releases the socket. It reports ErrReceiverActive if the receive
// loop is still attached: stopping first prevents a race between closure
// and an in-flight read. Closing a closed endpoint is a no-op.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tasks != nil {
		return ErrReceiverActive
	}
	if e.closed {
		return nil
	}
	e.closed = true
	return e.pc.Close()
}

// receive reads one datagram per readiness poll. The stop channel is the
// sole cancellation point, observed once per poll interval.
func (e *Endpoint) receive(stop <-chan struct{}) {
	buf := make([]byte, MaxDatagramSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		e.pc.SetReadDeadline(time.Now().Add(e.poll))
		n, raddr, err := e.pc.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return
		}
		e.recvQ.Add(Datagram{Message: string(buf[:n]), Addr: raddr})
		connMetrics.datagramsIn.Add(1)
	}
}
