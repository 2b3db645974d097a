// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1Seven3Seven/netlib/queue"
	"github.com/creachadair/taskgroup"
)

// ConnState describes the lifecycle state of a Conn.
type ConnState int

const (
	// ConnIdle is a constructed Conn not yet bound to a live socket.
	ConnIdle ConnState = iota

	// ConnActive means the socket is usable and a receive loop may run.
	ConnActive

	// ConnClosing means a stop was requested and the loop is draining.
	ConnClosing

	// ConnClosed means the socket has been released, either explicitly or
	// because the remote peer disconnected.
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnIdle:
		return "idle"
	case ConnActive:
		return "active"
	case ConnClosing:
		return "closing"
	case ConnClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// A Conn owns one stream socket bound to a single remote peer. It decodes
// length-prefixed frames on a background receive loop and queues completed
// messages for the owner to drain; sends are synchronous on the caller's
// goroutine and bypass the queue.
//
// At most one receive loop is attached to a Conn at a time. Starting a
// running loop and stopping a stopped one are both no-ops. Concurrent reads
// and writes are safe: the loop goroutine owns the receive direction, the
// caller owns the send direction, and the inbound queue is the only hand-off
// between them.
type Conn struct {
	nc    net.Conn
	br    *bufio.Reader
	codec Codec
	poll  time.Duration
	recvQ *queue.Queue[string]

	// Must hold to write to nc.
	sendMu sync.Mutex

	mu      sync.Mutex
	state   ConnState
	stop    chan struct{}
	stopped bool // stop already signaled for the current loop
	tasks   *taskgroup.Group
	err     error // terminal loop error, nil for a clean close
}

// newConn wraps a live stream socket. The Conn starts Active with no
// receive loop attached.
func newConn(nc net.Conn, codec Codec, poll time.Duration) *Conn {
	return &Conn{
		nc:    nc,
		br:    bufio.NewReader(nc),
		codec: codec,
		poll:  poll,
		recvQ: queue.New[string](),
		state: ConnActive,
	}
}

// RemoteAddr reports the remote peer's address.
func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

// LocalAddr reports the local address of the underlying socket. On a
// client, this is the address the server knows the peer by.
func (c *Conn) LocalAddr() string { return c.nc.LocalAddr().String() }

// State reports the current lifecycle state of c.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports the error that terminated the receive loop, if any. A clean
// shutdown, including a disconnect by the remote peer, reports nil.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// StartReceiving attaches the receive loop to c. It is a no-op if a loop is
// already running or the connection is closed.
func (c *Conn) StartReceiving() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ConnActive || c.tasks != nil {
		return
	}
	c.stop = make(chan struct{})
	c.stopped = false
	c.tasks = taskgroup.New(nil)

	stop := c.stop
	c.tasks.Go(func() error {
		c.receive(stop)
		return nil
	})
}

// StopReceiving signals the receive loop to stop and blocks until it has
// exited. The wait is bounded by one poll interval plus the time to finish
// any in-flight frame. It is a no-op if no loop is running.
func (c *Conn) StopReceiving() {
	c.mu.Lock()
	g := c.tasks
	if g == nil {
		c.mu.Unlock()
		return
	}
	if !c.stopped {
		c.stopped = true
		close(c.stop)
		if c.state == ConnActive {
			c.state = ConnClosing
		}
	}
	c.mu.Unlock()

	g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tasks != g {
		return // a concurrent stop finished first and a new loop was started
	}
	c.tasks = nil
	if c.state == ConnClosing {
		// The loop exited on the stop signal, not a transport condition.
		// The socket remains usable for sends and a later restart.
		c.state = ConnActive
	}
}

// Send encodes msg as a frame and writes it to the socket. Transport
// failures are reported as a *SendError; frame-size violations as a
// *FrameSizeError. Sends do not affect the receive loop or other peers.
func (c *Conn) Send(msg string) error {
	if c.State() == ConnClosed {
		return &SendError{Peer: c.RemoteAddr(), Err: net.ErrClosed}
	}
	frame, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if _, err := c.nc.Write(frame); err != nil {
		return &SendError{Peer: c.RemoteAddr(), Err: err}
	}
	connMetrics.messagesSent.Add(1)
	return nil
}

// Messages drains and returns all messages received so far, in arrival
// order. It never blocks; with nothing queued it returns nil.
func (c *Conn) Messages() []string { return c.recvQ.Drain() }

// Close releases the socket. It reports ErrReceiverActive if the receive
// loop is still attached; call StopReceiving first. Closing a closed
// connection is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tasks != nil {
		return ErrReceiverActive
	}
	if c.state == ConnClosed {
		return nil
	}
	c.state = ConnClosed
	return c.nc.Close()
}

// receive is the body of the receive loop. The stop channel is the sole
// cooperative cancellation point, observed once per poll interval.
func (c *Conn) receive(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		// Poll readiness: wait for the first byte of a frame under the poll
		// deadline. Once a frame has begun, commit to finishing it without a
		// deadline so a slow sender cannot desynchronize the stream.
		c.nc.SetReadDeadline(time.Now().Add(c.poll))
		if _, err := c.br.Peek(1); err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			c.exit(err)
			return
		}
		c.nc.SetReadDeadline(time.Time{})

		msg, err := c.codec.Decode(c.br)
		if err != nil {
			c.exit(err)
			return
		}
		c.recvQ.Add(msg)
		connMetrics.messagesReceived.Add(1)
	}
}

// exit records the loop's terminal condition and releases the socket. A
// disconnect by the remote peer is a clean exit, not an error; anything
// else is recorded for the owner to inspect via Err.
func (c *Conn) exit(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) || errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if errors.Is(err, ErrFrameTooLarge) {
		connMetrics.framesOversize.Add(1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ConnClosed {
		c.state = ConnClosed
		c.err = err
		c.nc.Close()
		connMetrics.connsClosed.Add(1)
	}
}
