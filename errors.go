// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is reported when the remote peer closes the stream
	// before a complete frame is received. A receive loop observing it marks
	// its connection Closed and exits cleanly.
	ErrConnectionClosed = errors.New("connection closed by peer")

	// ErrFrameTooLarge is reported when a frame's declared length exceeds the
	// codec's safety ceiling.
	ErrFrameTooLarge = errors.New("frame exceeds maximum payload size")

	// ErrMessageTooLarge is reported when a datagram payload exceeds the
	// transport's maximum datagram size.
	ErrMessageTooLarge = errors.New("message exceeds maximum datagram size")

	// ErrUnknownPeer is reported by registry operations referencing a peer
	// that is not registered.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrReceiverActive is reported when a socket is closed out of order,
	// while its receive loop is still attached.
	ErrReceiverActive = errors.New("receive loop is still active")
)

// A ConfigError reports an invalid construction parameter. It is returned
// synchronously by constructors before any socket is opened.
type ConfigError struct {
	Field  string // the offending parameter
	Reason string
}

// Error satisfies the error interface.
func (c *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", c.Field, c.Reason)
}

// A SendError reports a transport failure while writing to a single peer.
// Failures are isolated per peer: a SendError for one peer does not affect
// traffic to any other.
type SendError struct {
	Peer string // the remote address of the failed peer
	Err  error  // the underlying transport error
}

// Error satisfies the error interface.
func (s *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", s.Peer, s.Err)
}

// Unwrap reports the underlying transport error.
func (s *SendError) Unwrap() error { return s.Err }

// A FrameSizeError reports a frame whose payload length cannot be
// represented or transported under the codec's limits.
type FrameSizeError struct {
	Size  int   // the offending payload length in bytes
	Limit int   // the limit that was exceeded
	Err   error // the category of failure, e.g. ErrFrameTooLarge
}

// Error satisfies the error interface.
func (f *FrameSizeError) Error() string {
	return fmt.Sprintf("frame payload %d bytes exceeds limit %d: %v", f.Size, f.Limit, f.Err)
}

// Unwrap reports the failure category, permitting errors.Is checks against
// ErrFrameTooLarge.
func (f *FrameSizeError) Unwrap() error { return f.Err }

// A BroadcastError is the aggregate result of a send to every registered
// peer where at least one peer failed. Sends to the remaining peers were
// still attempted; only the listed peers failed.
type BroadcastError struct {
	Failed map[string]error // remote address → failure for that peer
}

// Error satisfies the error interface.
func (b *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast failed for %d peer(s)", len(b.Failed))
}
