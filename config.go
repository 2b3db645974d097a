// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib

import (
	"fmt"
	"net"
	"time"
)

// DefaultPort is the port used when a config does not specify one.
const DefaultPort = 1024

// DefaultPollTimeout is the readiness-poll interval used when a config does
// not specify one. The poll interval is the cancellation granularity of
// every loop: a smaller value lowers stop latency at the cost of more
// frequent wakeups.
const DefaultPollTimeout = 100 * time.Millisecond

// A Config carries the construction parameters shared by servers, clients,
// and datagram endpoints. The zero value is ready for use: every field has a
// default, applied at construction.
type Config struct {
	// IP is the address to bind (server, endpoint) or connect to (client).
	// If nil, servers and endpoints bind the local address reported by
	// LocalIP; clients must set it.
	IP net.IP

	// Port is the port to bind or connect to. Zero selects DefaultPort;
	// use Ephemeral to bind a system-assigned port.
	Port int

	// HeaderWidth is the width in bytes of the frame length prefix, 1..8.
	// Zero selects DefaultHeaderWidth. Datagram endpoints ignore it.
	HeaderWidth int

	// PollTimeout bounds each readiness poll. Zero selects
	// DefaultPollTimeout.
	PollTimeout time.Duration

	// MaxPayload is the safety ceiling on a single frame payload, in bytes.
	// Zero selects DefaultMaxPayload.
	MaxPayload int
}

// Ephemeral is a sentinel port value requesting a system-assigned port.
// It is distinct from zero so that the zero Config keeps its default.
const Ephemeral = -1

// withDefaults returns a copy of c with defaults filled in.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	} else if c.Port == Ephemeral {
		c.Port = 0
	}
	if c.HeaderWidth == 0 {
		c.HeaderWidth = DefaultHeaderWidth
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = DefaultMaxPayload
	}
	return c
}

// checkValid reports a *ConfigError for the first invalid field of c.
// It expects defaults to have been filled in already.
func (c Config) checkValid() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "Port", Reason: fmt.Sprintf("port %d out of range", c.Port)}
	}
	if c.HeaderWidth < 1 || c.HeaderWidth > 8 {
		return &ConfigError{Field: "HeaderWidth", Reason: fmt.Sprintf("width %d not in 1..8", c.HeaderWidth)}
	}
	if c.PollTimeout < 0 {
		return &ConfigError{Field: "PollTimeout", Reason: "negative timeout"}
	}
	if c.MaxPayload < 0 {
		return &ConfigError{Field: "MaxPayload", Reason: "negative payload limit"}
	}
	return nil
}

// bindIP returns the address to bind, falling back to local-address
// discovery when none is set.
func (c Config) bindIP() net.IP {
	if c.IP != nil {
		return c.IP
	}
	return LocalIP()
}

// codec returns the frame codec described by c.
func (c Config) codec() Codec {
	return Codec{HeaderWidth: c.HeaderWidth, MaxPayload: c.MaxPayload}
}
